package recurring

import (
	"context"
	"time"

	"finboard/internal/models"

	"github.com/sirupsen/logrus"
)

// MaxCatchUp bounds how many missed occurrences of one rule a single run books.
const MaxCatchUp = 366

// Store is the persistence the Booker needs.
type Store interface {
	DueRecurringRules(ctx context.Context, now time.Time) ([]models.RecurringRule, error)
	ApplyRecurring(ctx context.Context, rule models.RecurringRule, dates []time.Time, nextRun time.Time, active bool) (bool, error)
}

// Booker turns due recurring rules into transactions.
type Booker struct {
	store Store
	now   func() time.Time
}

// NewBooker creates a Booker over store.
func NewBooker(store Store) *Booker {
	return &Booker{store: store, now: time.Now}
}

// Run books every due occurrence and reports how many transactions it created.
func (b *Booker) Run(ctx context.Context) (int, error) {
	now := b.now()
	rules, err := b.store.DueRecurringRules(ctx, now)
	if err != nil {
		return 0, err
	}

	booked := 0
	for _, rule := range rules {
		plan := Due(rule, now, MaxCatchUp)
		if len(plan.Dates) == 0 && plan.Active == rule.Active {
			continue
		}
		applied, err := b.store.ApplyRecurring(ctx, rule, plan.Dates, plan.NextRun, plan.Active)
		if err != nil {
			return booked, err
		}
		if !applied {
			// another run got there first
			logrus.WithField("rule", rule.ID).Debug("recurring rule already advanced")
			continue
		}
		booked += len(plan.Dates)
	}
	return booked, nil
}
