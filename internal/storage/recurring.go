package storage

import (
	"context"
	"database/sql"
	"time"

	"finboard/internal/models"
	"finboard/internal/recurring"
)

const recurringColumns = `r.id, r.user_id, r.type, r.amount, r.category_id, IFNULL(c.name, ''), r.description,
	r.frequency, r.start_date, r.next_run, r.end_date, r.active, r.created_at`

func scanRecurring(rows *sql.Rows) (models.RecurringRule, error) {
	var r models.RecurringRule
	var categoryID sql.NullInt64
	var endDate sql.NullTime
	err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Amount, &categoryID, &r.Category, &r.Description,
		&r.Frequency, &r.StartDate, &r.NextRun, &endDate, &r.Active, &r.CreatedAt)
	r.CategoryID = intPtr(categoryID)
	r.EndDate = timePtr(endDate)
	return r, err
}

// CreateRecurringRule validates and inserts r. The first run is its start date.
func (db *DB) CreateRecurringRule(ctx context.Context, r *models.RecurringRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.StartDate.IsZero() {
		r.StartDate = time.Now()
	}
	r.StartDate = utc(r.StartDate)
	r.NextRun = r.StartDate
	r.Active = true
	r.CreatedAt = utc(time.Now())
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategory(ctx, tx, r.UserID, r.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO recurring_rules (user_id, type, amount, category_id, description, frequency,
				start_date, next_run, end_date, active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			r.UserID, r.Type, r.Amount, nullInt(r.CategoryID), r.Description, r.Frequency,
			r.StartDate, r.NextRun, nullTime(r.EndDate), r.CreatedAt,
		)
		if err != nil {
			return err
		}
		r.ID, err = res.LastInsertId()
		return err
	})
}

// ListRecurringRules returns the user's rules ordered by next run.
func (db *DB) ListRecurringRules(ctx context.Context, userID int64) ([]models.RecurringRule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recurringColumns+`
		 FROM recurring_rules r LEFT JOIN categories c ON c.id = r.category_id
		 WHERE r.user_id = ? ORDER BY r.active DESC, r.next_run`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RecurringRule
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRecurringActive pauses or resumes a rule. Resuming moves the next run
// past the occurrences that fell inside the pause, and a rule whose next run
// would lie beyond its end date stays inactive.
func (db *DB) SetRecurringActive(ctx context.Context, userID, id int64, active bool) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var r models.RecurringRule
		var endDate sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT frequency, start_date, next_run, end_date, active
			 FROM recurring_rules WHERE id = ? AND user_id = ?`, id, userID,
		).Scan(&r.Frequency, &r.StartDate, &r.NextRun, &endDate, &r.Active)
		if err != nil {
			return notFound(err)
		}
		if !active || r.Active {
			_, err = tx.ExecContext(ctx, "UPDATE recurring_rules SET active = ? WHERE id = ?", active, id)
			return err
		}
		next := recurring.Resume(r, time.Now())
		if endDate.Valid && next.After(endDate.Time) {
			active = false
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE recurring_rules SET next_run = ?, active = ? WHERE id = ?", utc(next), active, id)
		return err
	})
}

// DueRecurringRules returns active rules of every user whose next run is at
// or before now.
func (db *DB) DueRecurringRules(ctx context.Context, now time.Time) ([]models.RecurringRule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recurringColumns+`
		 FROM recurring_rules r LEFT JOIN categories c ON c.id = r.category_id
		 WHERE r.active = 1 AND r.next_run <= ? ORDER BY r.next_run`,
		utc(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RecurringRule
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyRecurring books a transaction for each date and moves the rule to
// nextRun in one transaction. It reports false, booking nothing, when the
// rule's next run no longer matches rule.NextRun.
func (db *DB) ApplyRecurring(ctx context.Context, rule models.RecurringRule, dates []time.Time, nextRun time.Time, active bool) (bool, error) {
	applied := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE recurring_rules SET next_run = ?, active = ? WHERE id = ? AND next_run = ?",
			utc(nextRun), active, rule.ID, utc(rule.NextRun),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		for _, d := range dates {
			id := rule.ID
			t := &models.Transaction{
				UserID:      rule.UserID,
				Type:        rule.Type,
				Amount:      rule.Amount,
				CategoryID:  rule.CategoryID,
				Description: rule.Description,
				Date:        d,
				RecurringID: &id,
			}
			if err := insertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
