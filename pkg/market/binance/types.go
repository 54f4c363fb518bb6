package market

// Kline is a single candlestick from REST or the websocket stream.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Closed    bool // websocket only: the candle is final
}

// Trade is a single executed trade from the trade stream.
type Trade struct {
	Symbol       string
	Price        float64
	Qty          float64
	Time         int64 // ms
	IsBuyerMaker bool
}
