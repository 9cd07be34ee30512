package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"finboard/internal/models"
)

// ErrInvalidMonth is returned for budget months not in 2006-01 form.
var ErrInvalidMonth = errors.New("month must look like 2006-01")

// ListAssets returns the user's assets, largest first.
func (db *DB) ListAssets(ctx context.Context, userID int64) ([]models.Asset, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, name, kind, value, updated_at FROM assets WHERE user_id = ? ORDER BY value DESC, id",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.Value, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAsset inserts a and fills in its ID.
func (db *DB) CreateAsset(ctx context.Context, a *models.Asset) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return models.ErrEmptyName
	}
	if a.Value < 0 {
		return models.ErrInvalidAmount
	}
	if a.Kind == "" {
		a.Kind = models.AssetOther
	}
	a.UpdatedAt = utc(time.Now())
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO assets (user_id, name, kind, value, updated_at) VALUES (?, ?, ?, ?, ?)",
		a.UserID, a.Name, a.Kind, a.Value, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// UpdateAssetValue revalues one of the user's assets.
func (db *DB) UpdateAssetValue(ctx context.Context, userID, id int64, value float64) error {
	if value < 0 {
		return models.ErrInvalidAmount
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE assets SET value = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		value, utc(time.Now()), id, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAsset removes one of the user's assets.
func (db *DB) DeleteAsset(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM assets WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MonthRange returns [start, end) of a 2006-01 month in loc.
func MonthRange(month string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	return start, start.AddDate(0, 1, 0), nil
}

// SetBudget creates or replaces the budget for b's month and category.
func (db *DB) SetBudget(ctx context.Context, b *models.Budget) error {
	if _, _, err := MonthRange(b.Month, time.Local); err != nil {
		return err
	}
	if b.Amount <= 0 {
		return models.ErrInvalidAmount
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategory(ctx, tx, b.UserID, b.CategoryID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM budgets WHERE user_id = ? AND month = ? AND IFNULL(category_id, 0) = ?",
			b.UserID, b.Month, valueOr(b.CategoryID, 0),
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO budgets (user_id, category_id, month, amount) VALUES (?, ?, ?, ?)",
			b.UserID, nullInt(b.CategoryID), b.Month, b.Amount,
		)
		if err != nil {
			return err
		}
		b.ID, err = res.LastInsertId()
		return err
	})
}

func valueOr(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

// ListBudgets returns the user's budgets for month with the amount spent so
// far. The overall budget (no category) spends every expense of the month.
func (db *DB) ListBudgets(ctx context.Context, userID int64, month string) ([]models.Budget, error) {
	start, end, err := MonthRange(month, time.Local)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.category_id, IFNULL(c.name, ''), b.month, b.amount
		 FROM budgets b LEFT JOIN categories c ON c.id = b.category_id
		 WHERE b.user_id = ? AND b.month = ?
		 ORDER BY b.category_id IS NOT NULL, c.name`,
		userID, month,
	)
	if err != nil {
		return nil, err
	}
	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		var categoryID sql.NullInt64
		if err := rows.Scan(&b.ID, &b.UserID, &categoryID, &b.Category, &b.Month, &b.Amount); err != nil {
			rows.Close()
			return nil, err
		}
		b.CategoryID = intPtr(categoryID)
		budgets = append(budgets, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	spent, err := db.ExpenseByCategory(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range budgets {
		for _, s := range spent {
			if budgets[i].CategoryID == nil || *budgets[i].CategoryID == s.CategoryID {
				budgets[i].Spent += s.Total
			}
		}
	}
	return budgets, nil
}

// DeleteBudget removes one of the user's budgets.
func (db *DB) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM budgets WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGoals returns the user's goals, unfinished first.
func (db *DB) ListGoals(ctx context.Context, userID int64) ([]models.Goal, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, name, target, current, deadline, created_at
		 FROM goals WHERE user_id = ? ORDER BY current >= target, deadline IS NULL, deadline, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Goal
	for rows.Next() {
		var g models.Goal
		var deadline sql.NullTime
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Target, &g.Current, &deadline, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Deadline = timePtr(deadline)
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreateGoal inserts g and fills in its ID.
func (db *DB) CreateGoal(ctx context.Context, g *models.Goal) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return models.ErrEmptyName
	}
	if g.Target <= 0 || g.Current < 0 {
		return models.ErrInvalidAmount
	}
	g.CreatedAt = utc(time.Now())
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO goals (user_id, name, target, current, deadline, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		g.UserID, g.Name, g.Target, g.Current, nullTime(g.Deadline), g.CreatedAt,
	)
	if err != nil {
		return err
	}
	g.ID, err = res.LastInsertId()
	return err
}

// ContributeGoal adds amount to a goal's savings, never past its target,
// and returns the updated goal.
func (db *DB) ContributeGoal(ctx context.Context, userID, id int64, amount float64) (*models.Goal, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE goals SET current = MIN(target, current + ?) WHERE id = ? AND user_id = ?",
		amount, id, userID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	var g models.Goal
	var deadline sql.NullTime
	err = db.conn.QueryRowContext(ctx,
		"SELECT id, user_id, name, target, current, deadline, created_at FROM goals WHERE id = ?", id,
	).Scan(&g.ID, &g.UserID, &g.Name, &g.Target, &g.Current, &deadline, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	g.Deadline = timePtr(deadline)
	return &g, nil
}
