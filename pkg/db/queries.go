package db

import (
	"context"
	"database/sql"
)

// UpsertStrategyInstance inserts or refreshes a strategy definition row.
func (d *Database) UpsertStrategyInstance(ctx context.Context, si StrategyInstance) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_instances (id, name, strategy_type, description, version, author, timeframes, parameters, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			strategy_type = excluded.strategy_type,
			description = excluded.description,
			version = excluded.version,
			author = excluded.author,
			timeframes = excluded.timeframes,
			parameters = excluded.parameters,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`, si.ID, si.Name, si.StrategyType, si.Description, si.Version, si.Author, si.Timeframes, si.Parameters, si.IsActive)
	return err
}

// ListActiveInstances returns every active strategy definition.
func (d *Database) ListActiveInstances(ctx context.Context) ([]StrategyInstance, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, name, strategy_type, COALESCE(description,''), COALESCE(version,''), COALESCE(author,''),
		       COALESCE(timeframes,''), COALESCE(parameters,''), is_active
		FROM strategy_instances
		WHERE is_active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyInstance
	for rows.Next() {
		var si StrategyInstance
		var active int
		if err := rows.Scan(&si.ID, &si.Name, &si.StrategyType, &si.Description, &si.Version, &si.Author,
			&si.Timeframes, &si.Parameters, &active); err != nil {
			return nil, err
		}
		si.IsActive = active == 1
		out = append(out, si)
	}
	return out, rows.Err()
}

// SaveInstanceConfig persists an exported configuration document.
func (d *Database) SaveInstanceConfig(ctx context.Context, instanceID, configJSON string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_configs (instance_id, config, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instance_id) DO UPDATE SET config = excluded.config, updated_at = CURRENT_TIMESTAMP
	`, instanceID, configJSON)
	return err
}

// GetInstanceConfig loads a previously exported configuration. Returns
// sql.ErrNoRows when none exists.
func (d *Database) GetInstanceConfig(ctx context.Context, instanceID string) (string, error) {
	var config string
	err := d.DB.QueryRowContext(ctx,
		`SELECT config FROM strategy_configs WHERE instance_id = ?`, instanceID).Scan(&config)
	return config, err
}

// SaveInstanceState persists a runtime snapshot.
func (d *Database) SaveInstanceState(ctx context.Context, instanceID, stateJSON string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_states (instance_id, state_data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instance_id) DO UPDATE SET state_data = excluded.state_data, updated_at = CURRENT_TIMESTAMP
	`, instanceID, stateJSON)
	return err
}

// GetInstanceState loads the last runtime snapshot. Returns sql.ErrNoRows
// when none exists.
func (d *Database) GetInstanceState(ctx context.Context, instanceID string) (string, error) {
	var state string
	err := d.DB.QueryRowContext(ctx,
		`SELECT state_data FROM strategy_states WHERE instance_id = ?`, instanceID).Scan(&state)
	return state, err
}

// UpsertTrade inserts a trade or refreshes its mutable fields after a status
// transition or fill patch.
func (d *Database) UpsertTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, instance_id, symbol, direction, entry_price, entry_time, entry_signal,
		                    qty, status, exit_price, exit_time, exit_signal, pnl, pnl_pct, meta, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			entry_price = excluded.entry_price,
			qty = excluded.qty,
			status = excluded.status,
			exit_price = excluded.exit_price,
			exit_time = excluded.exit_time,
			exit_signal = excluded.exit_signal,
			pnl = excluded.pnl,
			pnl_pct = excluded.pnl_pct,
			meta = excluded.meta,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, t.InstanceID, t.Symbol, t.Direction, t.EntryPrice, t.EntryTime, t.EntrySignal,
		t.Qty, t.Status, t.ExitPrice, t.ExitTime, t.ExitSignal, t.PnL, t.PnLPct, t.Meta)
	return err
}

// ListTrades returns the most recent trades for an instance.
func (d *Database) ListTrades(ctx context.Context, instanceID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, instance_id, symbol, direction, entry_price, entry_time, COALESCE(entry_signal,''),
		       qty, status, exit_price, COALESCE(exit_time, entry_time), COALESCE(exit_signal,''),
		       pnl, pnl_pct, COALESCE(meta,'')
		FROM trades
		WHERE instance_id = ?
		ORDER BY entry_time DESC
		LIMIT ?
	`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.InstanceID, &t.Symbol, &t.Direction, &t.EntryPrice, &t.EntryTime,
			&t.EntrySignal, &t.Qty, &t.Status, &t.ExitPrice, &t.ExitTime, &t.ExitSignal,
			&t.PnL, &t.PnLPct, &t.Meta); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateOrder records a submitted order intent.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, instance_id, symbol, side, price, qty, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.InstanceID, o.Symbol, o.Side, o.Price, o.Qty, o.Status, o.CreatedAt)
	return err
}

// UpdateOrderStatus transitions an order row.
func (d *Database) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
	return err
}

// UpsertPosition stores the latest position snapshot per symbol.
func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, qty, avg_price, mark_price, unrealized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			mark_price = excluded.mark_price,
			unrealized_pnl = excluded.unrealized_pnl,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Qty, p.AvgPrice, p.MarkPrice, p.UnrealizedPnL)
	return err
}

// ListPositions returns every stored position.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT symbol, qty, avg_price, mark_price, unrealized_pnl, updated_at FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.MarkPrice, &p.UnrealizedPnL, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosition returns the stored position for a symbol, or sql.ErrNoRows.
func (d *Database) GetPosition(ctx context.Context, symbol string) (Position, error) {
	var p Position
	err := d.DB.QueryRowContext(ctx,
		`SELECT symbol, qty, avg_price, mark_price, unrealized_pnl, updated_at FROM positions WHERE symbol = ?`,
		symbol).Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.MarkPrice, &p.UnrealizedPnL, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Position{Symbol: symbol}, err
	}
	return p, err
}
