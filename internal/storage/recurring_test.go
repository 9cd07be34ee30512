package storage

import (
	"testing"
	"time"

	"finboard/internal/models"
	"finboard/internal/recurring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RecurringSuite covers recurring rule persistence.
type RecurringSuite struct {
	storeSuite
}

func (s *RecurringSuite) rule(start time.Time) *models.RecurringRule {
	id := s.categoryID("住房")
	r := &models.RecurringRule{
		UserID:      s.user.ID,
		Type:        models.Expense,
		Amount:      3000,
		CategoryID:  &id,
		Description: "房租",
		Frequency:   models.Monthly,
		StartDate:   start,
	}
	require.NoError(s.T(), s.db.CreateRecurringRule(s.ctx, r))
	return r
}

func (s *RecurringSuite) TestCreateRecurringRule() {
	r := s.rule(time.Now().Add(-time.Hour))
	assert.NotZero(s.T(), r.ID)
	assert.True(s.T(), r.Active)
	assert.True(s.T(), r.NextRun.Equal(r.StartDate))

	err := s.db.CreateRecurringRule(s.ctx, &models.RecurringRule{
		UserID: s.user.ID, Type: models.Expense, Amount: 1, Frequency: "hourly",
	})
	assert.ErrorIs(s.T(), err, models.ErrInvalidFrequency)
}

func (s *RecurringSuite) TestDueRecurringRules() {
	past := s.rule(time.Now().Add(-time.Hour))
	s.rule(time.Now().Add(48 * time.Hour))

	due, err := s.db.DueRecurringRules(s.ctx, time.Now())
	require.NoError(s.T(), err)
	require.Len(s.T(), due, 1)
	assert.Equal(s.T(), past.ID, due[0].ID)
	assert.Equal(s.T(), "住房", due[0].Category)

	require.NoError(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, past.ID, false))
	due, err = s.db.DueRecurringRules(s.ctx, time.Now())
	require.NoError(s.T(), err)
	assert.Empty(s.T(), due, "paused rules are never due")
}

func (s *RecurringSuite) TestApplyRecurring() {
	start := time.Now().AddDate(0, -2, 0)
	s.rule(start)

	due, err := s.db.DueRecurringRules(s.ctx, time.Now())
	require.NoError(s.T(), err)
	require.Len(s.T(), due, 1)
	rule := due[0]

	dates := []time.Time{start, start.AddDate(0, 1, 0)}
	next := start.AddDate(0, 2, 0)
	applied, err := s.db.ApplyRecurring(s.ctx, rule, dates, next, true)
	require.NoError(s.T(), err)
	assert.True(s.T(), applied)

	list, err := s.db.ListTransactions(s.ctx, s.user.ID, TransactionFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 2)
	require.NotNil(s.T(), list[0].RecurringID)
	assert.Equal(s.T(), rule.ID, *list[0].RecurringID)
	assert.Equal(s.T(), "房租", list[0].Description)

	// the same snapshot cannot be applied twice
	applied, err = s.db.ApplyRecurring(s.ctx, rule, dates, next, true)
	require.NoError(s.T(), err)
	assert.False(s.T(), applied)

	list, err = s.db.ListTransactions(s.ctx, s.user.ID, TransactionFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), list, 2)
}

func (s *RecurringSuite) TestResumeSkipsPausedOccurrences() {
	r := s.rule(time.Now().AddDate(0, -6, -1))
	require.NoError(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, r.ID, false))

	resumedAt := time.Now()
	require.NoError(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, r.ID, true))

	rules, err := s.db.ListRecurringRules(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), rules, 1)
	assert.True(s.T(), rules[0].Active)
	assert.False(s.T(), rules[0].NextRun.Before(resumedAt), "next run %s is before resume", rules[0].NextRun)
	assert.True(s.T(), rules[0].NextRun.Before(resumedAt.AddDate(0, 1, 1)))

	n, err := recurring.NewBooker(s.db).Run(s.ctx)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), n)
}

func (s *RecurringSuite) TestResumePastEndDateStaysPaused() {
	end := time.Now().AddDate(0, -1, 0)
	id := s.categoryID("住房")
	r := &models.RecurringRule{
		UserID: s.user.ID, Type: models.Expense, Amount: 3000, CategoryID: &id,
		Frequency: models.Monthly, StartDate: time.Now().AddDate(0, -3, 0), EndDate: &end,
	}
	require.NoError(s.T(), s.db.CreateRecurringRule(s.ctx, r))
	require.NoError(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, r.ID, false))
	require.NoError(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, r.ID, true))

	rules, err := s.db.ListRecurringRules(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), rules, 1)
	assert.False(s.T(), rules[0].Active)
}

func (s *RecurringSuite) TestSetRecurringActiveUnknown() {
	assert.ErrorIs(s.T(), s.db.SetRecurringActive(s.ctx, s.user.ID, 42, true), ErrNotFound)
}

func TestRecurringSuite(t *testing.T) {
	suite.Run(t, new(RecurringSuite))
}
