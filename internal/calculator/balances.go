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
	// ErrUnbalanced means a snapshot does not sum to zero. It points at a defect in
	// share or payment accounting and must never be rounded away.
	ErrUnbalanced = errors.New("balances do not sum to zero")

	// ErrCurrencyMismatch means an entry is not in the group's currency.
	ErrCurrencyMismatch = errors.New("entry currency does not match group currency")
)

// BalanceSnapshot is the net balance of every member of a group at a point in time.
// Positive = is owed money, Negative = owes money.
type BalanceSnapshot struct {
	Currency string
	Balances map[string]money.Money
}

// Members returns the member IDs in ascending order.
func (s BalanceSnapshot) Members() []string {
	ids := mapKeys(s.Balances)
	slices.Sort(ids)
	return ids
}

// Get returns the member's balance, zero if absent.
func (s BalanceSnapshot) Get(memberID string) money.Money {
	if b, ok := s.Balances[memberID]; ok {
		return b
	}
	return money.Zero(s.Currency)
}

// Sum adds every balance. A consistent snapshot sums to zero.
// The total is accumulated exactly, so offsetting balances whose running sum
// would leave the int64 range still add up.
func (s BalanceSnapshot) Sum() (money.Money, error) {
	total := decimal.Zero
	for _, id := range s.Members() {
		b := s.Balances[id]
		if b.Currency != s.Currency {
			return money.Money{}, fmt.Errorf("%w: %s and %s", money.ErrCurrencyMismatch, s.Currency, b.Currency)
		}
		total = total.Add(decimal.NewFromInt(b.Amount))
	}
	n := total.BigInt()
	if !n.IsInt64() {
		return money.Money{}, fmt.Errorf("%w: balances sum to %s", money.ErrOverflow, total)
	}
	return money.New(n.Int64(), s.Currency), nil
}

// ComputeBalances folds a group's approved expenses and payments into net balances.
//
// Algorithm:
//   - Every member in members starts at zero, so members with no activity still appear
//   - For each approved expense: payer is credited the total, each share holder is debited their share
//   - For each approved payment: payer is credited the amount, payee is debited the amount
//   - The result must sum to zero, otherwise ErrUnbalanced is returned
//
// Entries that are not approved are ignored. Members referenced by entries but no
// longer in members are still included.
func ComputeBalances(currency string, members []string, expenses []models.Expense, payments []models.Payment) (BalanceSnapshot, error) {
	snap := BalanceSnapshot{
		Currency: currency,
		Balances: make(map[string]money.Money, len(members)),
	}
	for _, m := range members {
		snap.Balances[m] = money.Zero(currency)
	}

	for i := range expenses {
		e := &expenses[i]
		if e.State != models.StateApproved {
			continue
		}
		if e.Total.Currency != currency {
			return BalanceSnapshot{}, fmt.Errorf("%w: expense %s is %s, group is %s", ErrCurrencyMismatch, e.ID, e.Total.Currency, currency)
		}
		if err := snap.credit(e.PayerID, e.Total); err != nil {
			return BalanceSnapshot{}, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		for _, share := range e.Shares {
			if share.Amount.Currency != currency {
				return BalanceSnapshot{}, fmt.Errorf("%w: expense %s share for %s is %s", ErrCurrencyMismatch, e.ID, share.MemberID, share.Amount.Currency)
			}
			if err := snap.credit(share.MemberID, share.Amount.Neg()); err != nil {
				return BalanceSnapshot{}, fmt.Errorf("expense %s: %w", e.ID, err)
			}
		}
	}

	for i := range payments {
		p := &payments[i]
		if p.State != models.StateApproved {
			continue
		}
		if p.Amount.Currency != currency {
			return BalanceSnapshot{}, fmt.Errorf("%w: payment %s is %s, group is %s", ErrCurrencyMismatch, p.ID, p.Amount.Currency, currency)
		}
		// Paying off a debt moves the payer's balance up and the payee's down.
		if err := snap.credit(p.PayerID, p.Amount); err != nil {
			return BalanceSnapshot{}, fmt.Errorf("payment %s: %w", p.ID, err)
		}
		if err := snap.credit(p.PayeeID, p.Amount.Neg()); err != nil {
			return BalanceSnapshot{}, fmt.Errorf("payment %s: %w", p.ID, err)
		}
	}

	sum, err := snap.Sum()
	if err != nil {
		return BalanceSnapshot{}, err
	}
	if !sum.IsZero() {
		return BalanceSnapshot{}, fmt.Errorf("%w: off by %s", ErrUnbalanced, sum)
	}
	return snap, nil
}

func (s *BalanceSnapshot) credit(memberID string, amount money.Money) error {
	next, err := s.Get(memberID).Add(amount)
	if err != nil {
		return err
	}
	s.Balances[memberID] = next
	return nil
}
