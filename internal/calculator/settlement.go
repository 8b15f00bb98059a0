package calculator

import (
	"container/heap"
	"fmt"

	"github.com/mmynk/splitledger/internal/money"
)

// Transfer is one suggested payment: From pays To the Amount.
type Transfer struct {
	From   string
	To     string
	Amount money.Money
}

// Debt is one entry of a member's view of the suggested transfers.
// Amount is positive when Counterparty owes the member, negative when the
// member owes Counterparty.
type Debt struct {
	Counterparty string
	Amount       money.Money
}

// party is a creditor or debtor with the outstanding amount as a positive number.
type party struct {
	id     string
	amount int64
}

// partyHeap pops the largest outstanding amount first, lower member ID on ties.
type partyHeap []party

func (h partyHeap) Len() int { return len(h) }
func (h partyHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return h[i].id < h[j].id
}
func (h partyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *partyHeap) Push(x any)   { *h = append(*h, x.(party)) }
func (h *partyHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

// MinimizeSettlements produces a short list of transfers that zeroes every balance.
//
// Greedy algorithm: repeatedly match the largest creditor with the largest debtor
// and transfer the smaller of the two outstanding amounts. Ties go to the lower
// member ID, so the same snapshot always yields the same transfers.
// Members with a zero balance never appear.
func MinimizeSettlements(snap BalanceSnapshot) ([]Transfer, error) {
	sum, err := snap.Sum()
	if err != nil {
		return nil, err
	}
	if !sum.IsZero() {
		return nil, fmt.Errorf("%w: off by %s", ErrUnbalanced, sum)
	}

	creditors := &partyHeap{}
	debtors := &partyHeap{}
	for _, id := range snap.Members() {
		b := snap.Balances[id]
		if b.Currency != snap.Currency {
			return nil, fmt.Errorf("%w: %s has %s", ErrCurrencyMismatch, id, b.Currency)
		}
		switch b.Sign() {
		case 1:
			*creditors = append(*creditors, party{id: id, amount: b.Amount})
		case -1:
			*debtors = append(*debtors, party{id: id, amount: -b.Amount})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	var transfers []Transfer
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(creditors).(party)
		d := heap.Pop(debtors).(party)

		amount := min(c.amount, d.amount)
		transfers = append(transfers, Transfer{
			From:   d.id,
			To:     c.id,
			Amount: money.New(amount, snap.Currency),
		})

		c.amount -= amount
		d.amount -= amount
		if c.amount > 0 {
			heap.Push(creditors, c)
		}
		if d.amount > 0 {
			heap.Push(debtors, d)
		}
	}

	return transfers, nil
}

// ApplyTransfers returns the snapshot after every transfer is paid:
// the sender's balance rises and the receiver's falls.
func ApplyTransfers(snap BalanceSnapshot, transfers []Transfer) (BalanceSnapshot, error) {
	out := BalanceSnapshot{
		Currency: snap.Currency,
		Balances: make(map[string]money.Money, len(snap.Balances)),
	}
	for id, b := range snap.Balances {
		out.Balances[id] = b
	}
	for _, t := range transfers {
		if err := out.credit(t.From, t.Amount); err != nil {
			return BalanceSnapshot{}, err
		}
		if err := out.credit(t.To, t.Amount.Neg()); err != nil {
			return BalanceSnapshot{}, err
		}
	}
	return out, nil
}

// MemberDebts filters transfers down to those touching memberID, keeping their order.
func MemberDebts(transfers []Transfer, memberID string) []Debt {
	var debts []Debt
	for _, t := range transfers {
		switch memberID {
		case t.From:
			debts = append(debts, Debt{Counterparty: t.To, Amount: t.Amount.Neg()})
		case t.To:
			debts = append(debts, Debt{Counterparty: t.From, Amount: t.Amount})
		}
	}
	return debts
}
