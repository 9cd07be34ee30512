// Package recurring computes the occurrences of recurring transaction rules
// and books the ones that have come due.
package recurring

import (
	"time"

	"finboard/internal/models"
)

// Occurrence returns the n-th occurrence of a schedule starting at start,
// occurrence 0 being start itself. Monthly and yearly schedules keep the
// day of month of start, clamped to the last day of shorter months. Calendar
// arithmetic happens in time.Local, so a start stored in UTC keeps its local
// day; the result is returned in start's location.
func Occurrence(f models.Frequency, start time.Time, n int) time.Time {
	return occurrence(f, start.In(time.Local), n).In(start.Location())
}

func occurrence(f models.Frequency, start time.Time, n int) time.Time {
	switch f {
	case models.Daily:
		return start.AddDate(0, 0, n)
	case models.Weekly:
		return start.AddDate(0, 0, 7*n)
	case models.Monthly:
		return anchored(start, 0, n)
	case models.Yearly:
		return anchored(start, n, 0)
	}
	return start
}

func anchored(start time.Time, years, months int) time.Time {
	first := time.Date(start.Year()+years, start.Month()+time.Month(months), 1,
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
	day := start.Day()
	if last := daysIn(first.Year(), first.Month(), start.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// index returns n such that Occurrence(f, start, n) == t for an occurrence t.
func index(f models.Frequency, start, t time.Time) int {
	start, t = start.In(time.Local), t.In(time.Local)
	switch f {
	case models.Daily:
		return int(t.Sub(start).Round(24*time.Hour) / (24 * time.Hour))
	case models.Weekly:
		return int(t.Sub(start).Round(24*time.Hour) / (7 * 24 * time.Hour))
	case models.Monthly:
		return (t.Year()-start.Year())*12 + int(t.Month()-start.Month())
	case models.Yearly:
		return t.Year() - start.Year()
	}
	return 0
}

// Plan is what booking a rule up to some instant produces.
type Plan struct {
	Dates   []time.Time // occurrences to book, oldest first
	NextRun time.Time
	Active  bool
}

// Due plans every occurrence of rule at or before now, starting at its
// NextRun, booking at most limit of them. Occurrences after EndDate are
// never booked and a rule that has run past its EndDate becomes inactive.
func Due(rule models.RecurringRule, now time.Time, limit int) Plan {
	p := Plan{NextRun: rule.NextRun, Active: rule.Active}
	if !rule.Active {
		return p
	}
	n := index(rule.Frequency, rule.StartDate, rule.NextRun)
	next := rule.NextRun
	for !next.After(now) && len(p.Dates) < limit {
		if rule.EndDate != nil && next.After(*rule.EndDate) {
			break
		}
		p.Dates = append(p.Dates, next)
		n++
		next = Occurrence(rule.Frequency, rule.StartDate, n)
	}
	p.NextRun = next
	if rule.EndDate != nil && next.After(*rule.EndDate) {
		p.Active = false
	}
	return p
}

// Resume returns the run a paused rule continues from when resumed at now:
// its NextRun if that is still ahead, otherwise the first occurrence at or
// after now. Occurrences that fell inside the pause are skipped.
func Resume(rule models.RecurringRule, now time.Time) time.Time {
	next := rule.NextRun
	n := index(rule.Frequency, rule.StartDate, next)
	for next.Before(now) {
		n++
		next = Occurrence(rule.Frequency, rule.StartDate, n)
	}
	return next
}
