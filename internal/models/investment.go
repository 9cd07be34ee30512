package models

import "time"

// ProductKind classifies portfolio products.
type ProductKind string

const (
	ProductStock ProductKind = "stock"
	ProductFund  ProductKind = "fund"
	ProductBond  ProductKind = "bond"
)

// Product is a security held in the portfolio.
type Product struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	Kind      ProductKind `json:"kind"`
	Quantity  float64     `json:"quantity"`
	CostBasis float64     `json:"cost_basis"` // average cost per unit
	Price     float64     `json:"price"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// MarketValue is quantity times the latest price.
func (p Product) MarketValue() float64 {
	return p.Quantity * p.Price
}

// Gain is the unrealised profit of the position.
func (p Product) Gain() float64 {
	return p.Quantity * (p.Price - p.CostBasis)
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// Trade is an executed buy or sell of a product.
type Trade struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Symbol    string    `json:"symbol"`
	Side      TradeSide `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	TradedAt  time.Time `json:"traded_at"`
}

// Total is the cash moved by the trade including fees.
func (t Trade) Total() float64 {
	if t.Side == Sell {
		return t.Quantity*t.Price - t.Fee
	}
	return t.Quantity*t.Price + t.Fee
}

// Dividend is a payout received for a product.
type Dividend struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Symbol    string    `json:"symbol"`
	Amount    float64   `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// RiskLevel orders alert severity.
type RiskLevel string

const (
	RiskInfo     RiskLevel = "info"
	RiskWarning  RiskLevel = "warning"
	RiskCritical RiskLevel = "critical"
)

// RiskAlert flags a position that needs attention.
type RiskAlert struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	ProductID    int64     `json:"product_id"`
	Symbol       string    `json:"symbol"`
	Rule         string    `json:"rule"`
	Level        RiskLevel `json:"level"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}
