// Package portfolio holds the arithmetic of investment positions: applying
// trades to holdings and flagging positions that carry too much risk.
package portfolio

import (
	"errors"
	"fmt"

	"finboard/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientHolding is returned when a sell exceeds the quantity held.
	ErrInsufficientHolding = errors.New("insufficient holding")
	// ErrInvalidTrade is returned for trades with a non-positive quantity or price.
	ErrInvalidTrade = errors.New("trade quantity and price must be positive")
)

// ApplyTrade returns p after t. Buys move the average cost to include the
// fee; sells keep it, and a fully closed position has zero cost. The trade
// price becomes the product's latest price.
func ApplyTrade(p models.Product, t models.Trade) (models.Product, error) {
	if t.Quantity <= 0 || t.Price <= 0 || t.Fee < 0 {
		return p, ErrInvalidTrade
	}
	qty := decimal.NewFromFloat(p.Quantity)
	tq := decimal.NewFromFloat(t.Quantity)
	price := decimal.NewFromFloat(t.Price)

	switch t.Side {
	case models.Buy:
		cost := decimal.NewFromFloat(p.CostBasis).Mul(qty).
			Add(tq.Mul(price)).
			Add(decimal.NewFromFloat(t.Fee))
		qty = qty.Add(tq)
		p.CostBasis = cost.Div(qty).Round(4).InexactFloat64()
	case models.Sell:
		if tq.GreaterThan(qty) {
			return p, fmt.Errorf("sell %s of %s: %w", tq, p.Symbol, ErrInsufficientHolding)
		}
		qty = qty.Sub(tq)
		if qty.IsZero() {
			p.CostBasis = 0
		}
	default:
		return p, fmt.Errorf("unknown side %q: %w", t.Side, ErrInvalidTrade)
	}
	p.Quantity = qty.InexactFloat64()
	p.Price = t.Price
	return p, nil
}

// Summary totals a set of holdings.
type Summary struct {
	MarketValue float64
	Cost        float64
	Gain        float64
	GainRatio   float64
}

// Summarize totals products.
func Summarize(products []models.Product) Summary {
	value, cost := decimal.Zero, decimal.Zero
	for _, p := range products {
		q := decimal.NewFromFloat(p.Quantity)
		value = value.Add(q.Mul(decimal.NewFromFloat(p.Price)))
		cost = cost.Add(q.Mul(decimal.NewFromFloat(p.CostBasis)))
	}
	s := Summary{
		MarketValue: value.Round(2).InexactFloat64(),
		Cost:        cost.Round(2).InexactFloat64(),
		Gain:        value.Sub(cost).Round(2).InexactFloat64(),
	}
	if cost.IsPositive() {
		s.GainRatio = value.Sub(cost).Div(cost).Round(4).InexactFloat64()
	}
	return s
}
