package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"finboard/internal/models"
)

// ListCategories returns the user's categories, expense first.
func (db *DB) ListCategories(ctx context.Context, userID int64) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, name, type, icon, color, created_at
		 FROM categories WHERE user_id = ? ORDER BY type, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Icon, &c.Color, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory retrieves one of the user's categories.
func (db *DB) GetCategory(ctx context.Context, userID, id int64) (*models.Category, error) {
	var c models.Category
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, icon, color, created_at
		 FROM categories WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Icon, &c.Color, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateCategory inserts c and fills in its ID.
func (db *DB) CreateCategory(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.ErrEmptyName
	}
	if !c.Type.Valid() {
		return models.ErrInvalidType
	}
	c.CreatedAt = utc(time.Now())
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO categories (user_id, name, type, icon, color, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.UserID, c.Name, c.Type, c.Icon, c.Color, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// DeleteCategory removes a category. Its transactions keep their amounts and
// lose the category.
func (db *DB) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM categories WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkCategory ensures categoryID, if set, belongs to the user.
func checkCategory(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, userID int64, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM categories WHERE id = ? AND user_id = ?", *categoryID, userID,
	).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("category %d: %w", *categoryID, ErrNotFound)
	}
	return nil
}

// CreateTransaction validates and inserts t, filling in its ID.
func (db *DB) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		t.Date = time.Now()
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return insertTransaction(ctx, tx, t)
	})
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	if err := checkCategory(ctx, tx, t.UserID, t.CategoryID); err != nil {
		return err
	}
	t.Date = utc(t.Date)
	t.CreatedAt = utc(time.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, category_id, description, date, recurring_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Type, t.Amount, nullInt(t.CategoryID), t.Description, t.Date, nullInt(t.RecurringID), t.CreatedAt,
	)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// DeleteTransaction removes one of the user's transactions.
func (db *DB) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransactionFilter narrows ListTransactions. Zero values do not filter.
type TransactionFilter struct {
	From       time.Time // inclusive
	To         time.Time // exclusive
	Type       models.TransactionType
	CategoryID int64
	Limit      int
}

// ListTransactions returns the user's transactions, newest first.
func (db *DB) ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT t.id, t.user_id, t.type, t.amount, t.category_id, IFNULL(c.name, ''), t.description, t.date, t.recurring_id, t.created_at
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ?`
	args := []any{userID}
	if !f.From.IsZero() {
		query += " AND t.date >= ?"
		args = append(args, utc(f.From))
	}
	if !f.To.IsZero() {
		query += " AND t.date < ?"
		args = append(args, utc(f.To))
	}
	if f.Type != "" {
		query += " AND t.type = ?"
		args = append(args, f.Type)
	}
	if f.CategoryID != 0 {
		query += " AND t.category_id = ?"
		args = append(args, f.CategoryID)
	}
	query += " ORDER BY t.date DESC, t.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var categoryID, recurringID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &categoryID, &t.Category,
			&t.Description, &t.Date, &recurringID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CategoryID = intPtr(categoryID)
		t.RecurringID = intPtr(recurringID)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Totals is the income and expense over a period.
type Totals struct {
	Income  float64
	Expense float64
}

// SumTransactions totals the user's income and expense in [from, to).
func (db *DB) SumTransactions(ctx context.Context, userID int64, from, to time.Time) (Totals, error) {
	var t Totals
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			IFNULL(SUM(CASE WHEN type = 'income' THEN amount END), 0),
			IFNULL(SUM(CASE WHEN type = 'expense' THEN amount END), 0)
		 FROM transactions WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, utc(from), utc(to),
	).Scan(&t.Income, &t.Expense)
	return t, err
}

// CategoryTotal is the expense booked against one category.
type CategoryTotal struct {
	CategoryID int64
	Category   string
	Total      float64
	Count      int
}

// ExpenseByCategory groups the user's expenses in [from, to) by category.
// Uncategorised expenses have CategoryID 0.
func (db *DB) ExpenseByCategory(ctx context.Context, userID int64, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT IFNULL(t.category_id, 0), IFNULL(c.name, ''), SUM(t.amount), COUNT(*)
		 FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = ? AND t.type = 'expense' AND t.date >= ? AND t.date < ?
		 GROUP BY IFNULL(t.category_id, 0)
		 ORDER BY SUM(t.amount) DESC`,
		userID, utc(from), utc(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}
