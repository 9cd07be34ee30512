package models

import "time"

// AssetKind classifies manually tracked assets.
type AssetKind string

const (
	AssetCash     AssetKind = "cash"
	AssetBank     AssetKind = "bank"
	AssetProperty AssetKind = "property"
	AssetOther    AssetKind = "other"
)

// Asset is a manually valued holding such as a bank account.
type Asset struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Kind      AssetKind `json:"kind"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Budget caps spending for one month, either overall or for one category.
type Budget struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	CategoryID *int64  `json:"category_id,omitempty"`
	Category   string  `json:"category"`
	Month      string  `json:"month"` // 2006-01
	Amount     float64 `json:"amount"`
	Spent      float64 `json:"spent"`
}

// Usage is the spent share of the budget, 0 for an empty budget.
func (b Budget) Usage() float64 {
	if b.Amount <= 0 {
		return 0
	}
	return b.Spent / b.Amount
}

// Goal is a savings target.
type Goal struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	Target    float64    `json:"target"`
	Current   float64    `json:"current"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Progress is the saved share of the target in [0, 1].
func (g Goal) Progress() float64 {
	if g.Target <= 0 {
		return 0
	}
	p := g.Current / g.Target
	if p > 1 {
		return 1
	}
	return p
}

// Done reports whether the target has been reached.
func (g Goal) Done() bool {
	return g.Target > 0 && g.Current >= g.Target
}
