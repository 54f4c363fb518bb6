package indicators

// SMA returns the arithmetic mean of the last period values, or 0 when the
// series is shorter than the period.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// RSI returns the unsmoothed Relative Strength Index over the last period
// price changes. Needs period+1 values; a window with no losses reads 100.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	return 100 - 100/(1+gains/losses)
}
