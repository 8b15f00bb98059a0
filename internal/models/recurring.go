package models

import (
	"fmt"
	"time"

	"github.com/mmynk/splitledger/internal/money"
)

// Frequency is the unit of a recurring expense interval.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurringExpense is a template that produces a pending expense every interval.
type RecurringExpense struct {
	// ID is the unique identifier for the template (UUID format).
	ID string

	GroupID     string
	PayerID     string
	Total       money.Money
	Description string
	Category    string

	// Policy and Shares describe the split applied to each generated expense.
	// For percentage splits, Shares carry the percentages; for exact splits, the amounts.
	// An equal split with no shares divides among all current members.
	Policy SplitPolicy
	Shares []Share

	Frequency Frequency
	Interval  int

	// StartAt and EndAt bound the schedule (Unix seconds). EndAt zero means open-ended.
	StartAt int64
	EndAt   int64

	// NextAt is the Unix timestamp of the next occurrence.
	NextAt int64

	Paused    bool
	CreatedBy string
	CreatedAt int64

	// LastRunAt is the Unix timestamp of the last generated expense.
	LastRunAt int64
}

// Next returns the occurrence following t.
func (r *RecurringExpense) Next(t time.Time) (time.Time, error) {
	n := r.Interval
	if n <= 0 {
		n = 1
	}
	switch r.Frequency {
	case FrequencyDaily:
		return t.AddDate(0, 0, n), nil
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7*n), nil
	case FrequencyMonthly:
		return t.AddDate(0, n, 0), nil
	case FrequencyYearly:
		return t.AddDate(n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", r.Frequency)
}

// Due reports whether the template should produce an expense at now.
func (r *RecurringExpense) Due(now time.Time) bool {
	if r.Paused {
		return false
	}
	if r.NextAt > now.Unix() {
		return false
	}
	if r.EndAt != 0 && r.NextAt > r.EndAt {
		return false
	}
	return true
}
