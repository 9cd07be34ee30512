package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"finboard/internal/models"
	"finboard/internal/portfolio"
)

const productColumns = "id, user_id, symbol, name, kind, quantity, cost_basis, price, updated_at"

type rowScanner interface{ Scan(...any) error }

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.UserID, &p.Symbol, &p.Name, &p.Kind, &p.Quantity, &p.CostBasis, &p.Price, &p.UpdatedAt)
	return p, err
}

// ListProducts returns the user's products ordered by symbol.
func (db *DB) ListProducts(ctx context.Context, userID int64) ([]models.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE user_id = ? ORDER BY symbol", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct retrieves one of the user's products.
func (db *DB) GetProduct(ctx context.Context, userID, id int64) (*models.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ? AND user_id = ?", id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// CreateProduct inserts an empty position for p's symbol.
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Name = strings.TrimSpace(p.Name)
	if p.Symbol == "" {
		return models.ErrEmptyName
	}
	if p.Name == "" {
		p.Name = p.Symbol
	}
	if p.Kind == "" {
		p.Kind = models.ProductStock
	}
	if p.Price < 0 {
		return models.ErrInvalidAmount
	}
	p.Quantity, p.CostBasis = 0, 0
	p.UpdatedAt = utc(time.Now())
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO products (user_id, symbol, name, kind, quantity, cost_basis, price, updated_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		p.UserID, p.Symbol, p.Name, p.Kind, p.Price, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// UpdateProductPrice records the latest price of a product.
func (db *DB) UpdateProductPrice(ctx context.Context, userID, id int64, price float64) error {
	if price <= 0 {
		return models.ErrInvalidAmount
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE products SET price = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		price, utc(time.Now()), id, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTrade stores t and applies it to its product in one transaction.
// The product is left untouched when the trade is rejected.
func (db *DB) RecordTrade(ctx context.Context, t *models.Trade) (*models.Product, error) {
	if t.TradedAt.IsZero() {
		t.TradedAt = time.Now()
	}
	t.TradedAt = utc(t.TradedAt)
	var updated models.Product
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx,
			"SELECT "+productColumns+" FROM products WHERE id = ? AND user_id = ?", t.ProductID, t.UserID))
		if err != nil {
			return notFound(err)
		}
		if updated, err = portfolio.ApplyTrade(p, *t); err != nil {
			return err
		}
		updated.UpdatedAt = utc(time.Now())
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET quantity = ?, cost_basis = ?, price = ?, updated_at = ? WHERE id = ?",
			updated.Quantity, updated.CostBasis, updated.Price, updated.UpdatedAt, p.ID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO trades (user_id, product_id, side, quantity, price, fee, traded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			t.UserID, t.ProductID, t.Side, t.Quantity, t.Price, t.Fee, t.TradedAt,
		)
		if err != nil {
			return err
		}
		t.Symbol = p.Symbol
		t.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListTrades returns the user's trades, newest first. limit <= 0 returns all.
func (db *DB) ListTrades(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	query := `SELECT t.id, t.user_id, t.product_id, p.symbol, t.side, t.quantity, t.price, t.fee, t.traded_at
		FROM trades t JOIN products p ON p.id = t.product_id
		WHERE t.user_id = ? ORDER BY t.traded_at DESC, t.id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.ProductID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Fee, &t.TradedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordDividend stores a payout for one of the user's products.
func (db *DB) RecordDividend(ctx context.Context, d *models.Dividend) error {
	if d.Amount <= 0 {
		return models.ErrInvalidAmount
	}
	if d.PaidAt.IsZero() {
		d.PaidAt = time.Now()
	}
	d.PaidAt = utc(d.PaidAt)
	p, err := db.GetProduct(ctx, d.UserID, d.ProductID)
	if err != nil {
		return err
	}
	d.Symbol = p.Symbol
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO dividends (user_id, product_id, amount, paid_at) VALUES (?, ?, ?, ?)",
		d.UserID, d.ProductID, d.Amount, d.PaidAt,
	)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

// ListDividends returns the user's dividends, newest first.
func (db *DB) ListDividends(ctx context.Context, userID int64) ([]models.Dividend, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT d.id, d.user_id, d.product_id, p.symbol, d.amount, d.paid_at
		 FROM dividends d JOIN products p ON p.id = d.product_id
		 WHERE d.user_id = ? ORDER BY d.paid_at DESC, d.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Dividend
	for rows.Next() {
		var d models.Dividend
		if err := rows.Scan(&d.ID, &d.UserID, &d.ProductID, &d.Symbol, &d.Amount, &d.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddRiskAlerts stores alerts, skipping any that repeat an unacknowledged
// alert with the same product, rule and level. It returns how many were new.
func (db *DB) AddRiskAlerts(ctx context.Context, alerts []models.RiskAlert) (int, error) {
	added := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range alerts {
			a := &alerts[i]
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM risk_alerts
				 WHERE user_id = ? AND product_id = ? AND rule = ? AND level = ? AND acknowledged = 0`,
				a.UserID, a.ProductID, a.Rule, a.Level,
			).Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			a.CreatedAt = utc(time.Now())
			res, err := tx.ExecContext(ctx,
				`INSERT INTO risk_alerts (user_id, product_id, rule, level, message, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				a.UserID, a.ProductID, a.Rule, a.Level, a.Message, a.CreatedAt,
			)
			if err != nil {
				return err
			}
			if a.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

// ListRiskAlerts returns the user's alerts, newest first. Acknowledged alerts
// are included only when all is set.
func (db *DB) ListRiskAlerts(ctx context.Context, userID int64, all bool) ([]models.RiskAlert, error) {
	query := `SELECT a.id, a.user_id, a.product_id, p.symbol, a.rule, a.level, a.message, a.acknowledged, a.created_at
		FROM risk_alerts a JOIN products p ON p.id = a.product_id
		WHERE a.user_id = ?`
	if !all {
		query += " AND a.acknowledged = 0"
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RiskAlert
	for rows.Next() {
		var a models.RiskAlert
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductID, &a.Symbol, &a.Rule, &a.Level, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeRiskAlert marks one of the user's alerts as handled.
func (db *DB) AcknowledgeRiskAlert(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE risk_alerts SET acknowledged = 1 WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
