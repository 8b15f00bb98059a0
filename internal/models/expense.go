package models

import (
	"github.com/mmynk/splitledger/internal/money"
)

// SplitPolicy names how an expense total was divided among members.
type SplitPolicy string

const (
	// SplitEqual divides the total evenly; leftover minor units go to the lowest member IDs.
	SplitEqual SplitPolicy = "equal"
	// SplitExact uses caller-supplied amounts that must sum to the total.
	SplitExact SplitPolicy = "exact"
	// SplitPercentage converts caller-supplied percentages (summing to 100) into amounts.
	SplitPercentage SplitPolicy = "percentage"
)

// Expense is one shared expense recorded in a group's ledger.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to.
	GroupID string

	// PayerID is the member who paid the full amount.
	PayerID string

	// Total is the full amount paid.
	Total money.Money

	// Description is a short human-readable label (e.g., "Dinner", "Rent").
	Description string

	// Category is a free-form classification. Optional.
	Category string

	// Policy records which split policy produced Shares.
	Policy SplitPolicy

	// Shares is the per-member owed amount. Amounts always sum to Total.
	// Ordered by member ID.
	Shares []Share

	// State is the approval state.
	State State

	// CreatedBy is the member who recorded the expense.
	CreatedBy string

	// DecidedBy is the member (or system actor) that approved or rejected the expense.
	DecidedBy string

	// DecidedAt is the Unix timestamp of the approval or rejection.
	DecidedAt int64

	// OccurredAt is the Unix timestamp of when the expense happened.
	OccurredAt int64

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64

	// RecurringID links expenses generated from a recurring template.
	RecurringID string
}

// Share is one member's portion of an expense.
type Share struct {
	MemberID string
	Amount   money.Money

	// Percentage is the requested percentage for percentage splits, as a decimal string.
	Percentage string
}

// ShareOf returns the member's share, or zero if the member does not participate.
func (e *Expense) ShareOf(memberID string) money.Money {
	for _, s := range e.Shares {
		if s.MemberID == memberID {
			return s.Amount
		}
	}
	return money.Zero(e.Total.Currency)
}
