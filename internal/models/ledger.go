package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidType      = errors.New("type must be income or expense")
	ErrInvalidFrequency = errors.New("unknown frequency")
	ErrEmptyName        = errors.New("name is required")
)

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Valid reports whether t is income or expense.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Category groups transactions of one type.
type Category struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	Icon      string          `json:"icon"`
	Color     string          `json:"color"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transaction is a single income or expense record.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	RecurringID *int64          `json:"recurring_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the fields a caller must supply.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Item flattens t for list views.
func (t Transaction) Item() TransactionItem {
	return TransactionItem{
		ID:          t.ID,
		Type:        t.Type,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date,
	}
}

// Frequency is how often a recurring rule fires.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Valid reports whether f is a supported frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// RecurringRule produces a transaction on every occurrence of its schedule.
type RecurringRule struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Frequency   Frequency       `json:"frequency"`
	StartDate   time.Time       `json:"start_date"`
	NextRun     time.Time       `json:"next_run"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the fields a caller must supply.
func (r *RecurringRule) Validate() error {
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	return nil
}
