package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
)

// snapshot computes the group's balances from its approved entries. Any failure of
// the zero-sum check, or of the arithmetic under it, is logged in full and returned
// to the caller as a generic consistency fault.
func (e *Engine) snapshot(ctx context.Context, op string, gc *groupContext) (calculator.BalanceSnapshot, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveComputation(op, time.Since(start)) }()

	set, err := e.ledger.LoadApproved(ctx, gc.group.ID)
	if err != nil {
		return calculator.BalanceSnapshot{}, unavailable(op, err)
	}

	snap, err := calculator.ComputeBalances(gc.group.Currency, gc.ids(), set.Expenses, set.Payments)
	if err != nil {
		return calculator.BalanceSnapshot{}, e.fault(ctx, op, gc, err)
	}
	return snap, nil
}

func (e *Engine) fault(ctx context.Context, op string, gc *groupContext, err error) error {
	e.metrics.ConsistencyFault(op)
	slog.ErrorContext(ctx, "Consistency fault", "op", op, "group_id", gc.group.ID, "error", err)
	return &Error{Kind: ErrConsistency, Op: op, Msg: balanceFaultMessage}
}

// GetBalances returns every member's net balance in the group. Positive means the
// member is owed money. Former members with a non-zero history are included.
func (e *Engine) GetBalances(ctx context.Context, actor, groupID string) (calculator.BalanceSnapshot, error) {
	const op = "GetBalances"

	gc, err := e.loadGroupAs(ctx, op, groupID, actor)
	if err != nil {
		return calculator.BalanceSnapshot{}, err
	}
	return e.snapshot(ctx, op, gc)
}

// GetSettlementSuggestions returns a short list of transfers that settles the group.
func (e *Engine) GetSettlementSuggestions(ctx context.Context, actor, groupID string) ([]calculator.Transfer, error) {
	const op = "GetSettlementSuggestions"

	gc, err := e.loadGroupAs(ctx, op, groupID, actor)
	if err != nil {
		return nil, err
	}
	return e.suggestions(ctx, op, gc)
}

func (e *Engine) suggestions(ctx context.Context, op string, gc *groupContext) ([]calculator.Transfer, error) {
	snap, err := e.snapshot(ctx, op, gc)
	if err != nil {
		return nil, err
	}
	transfers, err := calculator.MinimizeSettlements(snap)
	if err != nil {
		return nil, e.fault(ctx, op, gc, err)
	}
	return transfers, nil
}

// GetMemberDebts returns the suggested transfers involving memberID, as signed
// amounts from that member's point of view: positive when the counterparty owes
// the member.
func (e *Engine) GetMemberDebts(ctx context.Context, actor, groupID, memberID string) ([]calculator.Debt, error) {
	const op = "GetMemberDebts"

	gc, err := e.loadGroupAs(ctx, op, groupID, actor)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		memberID = actor
	}
	if _, ok := gc.member(memberID); !ok {
		return nil, invalidf(op, "%s is not a group member", memberID)
	}

	transfers, err := e.suggestions(ctx, op, gc)
	if err != nil {
		return nil, err
	}
	return calculator.MemberDebts(transfers, memberID), nil
}
