package portfolio

import (
	"fmt"

	"finboard/internal/models"

	"github.com/shopspring/decimal"
)

// Rule names stored on alerts.
const (
	RuleConcentration = "concentration"
	RuleDrawdown      = "drawdown"
)

// Thresholds configure the risk evaluation. Shares are fractions.
type Thresholds struct {
	ConcentrationWarning  float64
	ConcentrationCritical float64
	DrawdownWarning       float64
	DrawdownCritical      float64
}

// DefaultThresholds flags positions above 40%/60% of the portfolio and
// prices 20%/30% below cost.
var DefaultThresholds = Thresholds{
	ConcentrationWarning:  0.40,
	ConcentrationCritical: 0.60,
	DrawdownWarning:       0.20,
	DrawdownCritical:      0.30,
}

// Evaluate returns the alerts raised by the current holdings. Closed
// positions never raise alerts, and concentration needs at least two open
// positions to mean anything.
func Evaluate(products []models.Product, th Thresholds) []models.RiskAlert {
	total := decimal.Zero
	open := 0
	for _, p := range products {
		if p.Quantity > 0 {
			open++
			total = total.Add(decimal.NewFromFloat(p.MarketValue()))
		}
	}

	var alerts []models.RiskAlert
	for _, p := range products {
		if p.Quantity <= 0 {
			continue
		}
		if open > 1 && total.IsPositive() {
			share := decimal.NewFromFloat(p.MarketValue()).Div(total).InexactFloat64()
			if level, ok := grade(share, th.ConcentrationWarning, th.ConcentrationCritical); ok {
				alerts = append(alerts, alert(p, RuleConcentration, level,
					fmt.Sprintf("%s 占组合市值 %.1f%%", p.Symbol, share*100)))
			}
		}
		if p.CostBasis > 0 {
			drop := decimal.NewFromFloat(p.CostBasis).Sub(decimal.NewFromFloat(p.Price)).
				Div(decimal.NewFromFloat(p.CostBasis)).InexactFloat64()
			if level, ok := grade(drop, th.DrawdownWarning, th.DrawdownCritical); ok {
				alerts = append(alerts, alert(p, RuleDrawdown, level,
					fmt.Sprintf("%s 较成本回撤 %.1f%%", p.Symbol, drop*100)))
			}
		}
	}
	return alerts
}

func grade(v, warning, critical float64) (models.RiskLevel, bool) {
	switch {
	case v > critical:
		return models.RiskCritical, true
	case v > warning:
		return models.RiskWarning, true
	}
	return "", false
}

func alert(p models.Product, rule string, level models.RiskLevel, msg string) models.RiskAlert {
	return models.RiskAlert{
		UserID:    p.UserID,
		ProductID: p.ID,
		Symbol:    p.Symbol,
		Rule:      rule,
		Level:     level,
		Message:   msg,
	}
}
