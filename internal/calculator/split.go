package calculator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

var (
	ErrNonPositiveTotal     = errors.New("total must be positive")
	ErrNoParticipants       = errors.New("must have at least one participant")
	ErrDuplicateParticipant = errors.New("participant listed more than once")
	ErrNonMember            = errors.New("participant is not a group member")
	ErrNegativeShare        = errors.New("share must not be negative")
	ErrShareSum             = errors.New("shares do not sum to total")
	ErrPercentageSum        = errors.New("percentages do not sum to 100")
	ErrUnknownPolicy        = errors.New("unknown split policy")
)

var hundred = decimal.NewFromInt(100)

// SplitInput is the caller's description of how to divide an expense.
// It is one of EqualSplit, ExactSplit or PercentageSplit.
type SplitInput interface {
	Policy() models.SplitPolicy
	splitInput()
}

// EqualSplit divides the total evenly among Participants.
// An empty list means every group member.
type EqualSplit struct {
	Participants []string
}

// ExactSplit assigns explicit amounts per member.
type ExactSplit struct {
	Amounts map[string]money.Money
}

// PercentageSplit assigns a percentage of the total per member.
type PercentageSplit struct {
	Percentages map[string]decimal.Decimal
}

func (EqualSplit) Policy() models.SplitPolicy      { return models.SplitEqual }
func (ExactSplit) Policy() models.SplitPolicy      { return models.SplitExact }
func (PercentageSplit) Policy() models.SplitPolicy { return models.SplitPercentage }

func (EqualSplit) splitInput()      {}
func (ExactSplit) splitInput()      {}
func (PercentageSplit) splitInput() {}

// ComputeShares divides total among group members according to input.
// members is the group's full member list and is used for membership checks.
// The returned shares are ordered by member ID and always sum exactly to total.
func ComputeShares(total money.Money, members []string, input SplitInput) ([]models.Share, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNonPositiveTotal, total)
	}

	memberSet := make(map[string]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}

	switch in := input.(type) {
	case EqualSplit:
		return equalShares(total, memberSet, members, in)
	case ExactSplit:
		return exactShares(total, memberSet, in)
	case PercentageSplit:
		return percentageShares(total, memberSet, in)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownPolicy, input)
}

func equalShares(total money.Money, memberSet map[string]bool, members []string, in EqualSplit) ([]models.Share, error) {
	participants := in.Participants
	if len(participants) == 0 {
		participants = members
	}
	ids, err := checkParticipants(participants, memberSet)
	if err != nil {
		return nil, err
	}

	amounts := make(map[string]int64, len(ids))
	for _, id := range ids {
		amounts[id] = 0
	}
	distribute(total.Amount, ids, amounts)

	return buildShares(ids, amounts, total.Currency, nil), nil
}

func exactShares(total money.Money, memberSet map[string]bool, in ExactSplit) ([]models.Share, error) {
	ids, err := checkParticipants(mapKeys(in.Amounts), memberSet)
	if err != nil {
		return nil, err
	}

	amounts := make(map[string]int64, len(ids))
	sum := money.Zero(total.Currency)
	for _, id := range ids {
		amt := in.Amounts[id]
		if amt.Currency != total.Currency {
			return nil, fmt.Errorf("share for %s: %w: %s and %s", id, money.ErrCurrencyMismatch, amt.Currency, total.Currency)
		}
		if amt.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s has %s", ErrNegativeShare, id, amt)
		}
		if sum, err = sum.Add(amt); err != nil {
			return nil, err
		}
		amounts[id] = amt.Amount
	}
	if sum.Amount != total.Amount {
		return nil, fmt.Errorf("%w: shares sum to %s, total is %s", ErrShareSum, sum, total)
	}

	return buildShares(ids, amounts, total.Currency, nil), nil
}

func percentageShares(total money.Money, memberSet map[string]bool, in PercentageSplit) ([]models.Share, error) {
	ids, err := checkParticipants(mapKeys(in.Percentages), memberSet)
	if err != nil {
		return nil, err
	}

	pctSum := decimal.Zero
	for _, id := range ids {
		pct := in.Percentages[id]
		if pct.IsNegative() {
			return nil, fmt.Errorf("%w: %s has %s%%", ErrNegativeShare, id, pct)
		}
		pctSum = pctSum.Add(pct)
	}
	if !pctSum.Equal(hundred) {
		return nil, fmt.Errorf("%w: got %s", ErrPercentageSum, pctSum)
	}

	amounts := make(map[string]int64, len(ids))
	var assigned int64
	var receivers []string
	whole := decimal.NewFromInt(total.Amount)
	for _, id := range ids {
		pct := in.Percentages[id]
		// x% of total, shifted by two places, floored to whole minor units.
		amt := whole.Mul(pct).Shift(-2).Floor().IntPart()
		amounts[id] = amt
		assigned += amt
		if pct.IsPositive() {
			receivers = append(receivers, id)
		}
	}
	// Each floor drops less than one unit, so the remainder is smaller than len(receivers).
	distribute(total.Amount-assigned, receivers, amounts)

	percentages := make(map[string]string, len(ids))
	for _, id := range ids {
		percentages[id] = in.Percentages[id].String()
	}
	return buildShares(ids, amounts, total.Currency, percentages), nil
}

// distribute adds amount evenly across ids, giving one extra unit to each of the
// first amount%len(ids) ids. ids must already be sorted.
func distribute(amount int64, ids []string, amounts map[string]int64) {
	if len(ids) == 0 || amount == 0 {
		return
	}
	n := int64(len(ids))
	base, rem := amount/n, amount%n
	for i, id := range ids {
		amounts[id] += base
		if int64(i) < rem {
			amounts[id]++
		}
	}
}

// checkParticipants validates membership and returns the ids sorted.
func checkParticipants(ids []string, memberSet map[string]bool) ([]string, error) {
	if len(ids) == 0 {
		return nil, ErrNoParticipants
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
		}
		seen[id] = true
		if !memberSet[id] {
			return nil, fmt.Errorf("%w: %s", ErrNonMember, id)
		}
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return sorted, nil
}

func buildShares(ids []string, amounts map[string]int64, currency string, percentages map[string]string) []models.Share {
	shares := make([]models.Share, len(ids))
	for i, id := range ids {
		shares[i] = models.Share{
			MemberID:   id,
			Amount:     money.New(amounts[id], currency),
			Percentage: percentages[id],
		}
	}
	return shares
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
