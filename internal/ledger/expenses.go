package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

// ExpenseInput describes a new or edited expense.
type ExpenseInput struct {
	GroupID     string
	PayerID     string
	Total       money.Money
	Description string
	Category    string
	OccurredAt  int64
	Split       calculator.SplitInput
}

// buildExpense validates in against the group and computes the shares.
func (e *Engine) buildExpense(op string, gc *groupContext, in ExpenseInput) (*models.Expense, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, invalidf(op, "description is required")
	}
	if in.Split == nil {
		return nil, invalidf(op, "split policy is required")
	}
	if in.Total.Currency != gc.group.Currency {
		return nil, invalidf(op, "expense currency %s does not match group currency %s", in.Total.Currency, gc.group.Currency)
	}
	if !in.Total.IsPositive() {
		return nil, invalidf(op, "total must be positive, got %s", in.Total)
	}
	if _, ok := gc.member(in.PayerID); !ok {
		return nil, invalidf(op, "payer %s is not a group member", in.PayerID)
	}

	shares, err := calculator.ComputeShares(in.Total, gc.ids(), in.Split)
	if err != nil {
		return nil, invalid(op, err)
	}

	return &models.Expense{
		GroupID:     gc.group.ID,
		PayerID:     in.PayerID,
		Total:       in.Total,
		Description: desc,
		Category:    strings.TrimSpace(in.Category),
		Policy:      in.Split.Policy(),
		Shares:      shares,
		OccurredAt:  in.OccurredAt,
	}, nil
}

// CreateExpense validates and records a pending expense. The payer must be a member
// and every share holder must be a current member. Nothing is written on error.
func (e *Engine) CreateExpense(ctx context.Context, actor string, in ExpenseInput) (*models.Expense, error) {
	const op = "CreateExpense"

	gc, err := e.loadGroupAs(ctx, op, in.GroupID, actor)
	if err != nil {
		return nil, err
	}
	expense, err := e.buildExpense(op, gc, in)
	if err != nil {
		return nil, err
	}
	expense.State = models.StatePending
	expense.CreatedBy = actor
	expense.CreatedAt = e.now().Unix()

	if err := e.ledger.CreateExpense(ctx, expense); err != nil {
		return nil, fromStorage(op, err)
	}
	e.metrics.EntryCreated("expense")
	slog.InfoContext(ctx, "Expense created",
		"group_id", expense.GroupID,
		"expense_id", expense.ID,
		"payer_id", expense.PayerID,
		"total", expense.Total.String(),
		"policy", expense.Policy,
	)
	return expense, nil
}

// UpdateExpense replaces a pending expense's payer, amount, description and split.
// Only its creator or a group admin may edit it.
func (e *Engine) UpdateExpense(ctx context.Context, actor, expenseID string, in ExpenseInput) (*models.Expense, error) {
	const op = "UpdateExpense"

	current, gc, err := e.expenseAs(ctx, op, actor, expenseID)
	if err != nil {
		return nil, err
	}
	if in.GroupID != "" && in.GroupID != current.GroupID {
		return nil, invalidf(op, "expense %s belongs to another group", expenseID)
	}
	if actor != current.CreatedBy && !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only the creator or an admin can edit this expense")
	}
	if current.State != models.StatePending {
		return nil, stateErrorf(op, "expense is %s, only pending expenses can be edited", current.State)
	}

	updated, err := e.buildExpense(op, gc, in)
	if err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.State = current.State
	updated.CreatedBy = current.CreatedBy
	updated.CreatedAt = current.CreatedAt
	updated.RecurringID = current.RecurringID
	if updated.OccurredAt == 0 {
		updated.OccurredAt = current.OccurredAt
	}

	if err := e.ledger.UpdatePendingExpense(ctx, updated); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, stateErrorf(op, "expense was decided while being edited")
		}
		return nil, fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Expense updated", "group_id", updated.GroupID, "expense_id", updated.ID, "actor", actor)
	return updated, nil
}

// DeleteExpense removes an expense. The creator may delete it while pending; an
// admin may delete it in any state.
func (e *Engine) DeleteExpense(ctx context.Context, actor, expenseID string) error {
	const op = "DeleteExpense"

	expense, gc, err := e.expenseAs(ctx, op, actor, expenseID)
	if err != nil {
		return err
	}

	admin := gc.isAdmin(actor)
	switch {
	case admin:
	case actor != expense.CreatedBy:
		return unauthorizedf(op, "only the creator or an admin can delete this expense")
	case expense.State != models.StatePending:
		return stateErrorf(op, "expense is %s, only pending expenses can be deleted", expense.State)
	}

	if err := e.ledger.DeleteExpense(ctx, expenseID, !admin); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return stateErrorf(op, "expense was decided before it could be deleted")
		}
		return fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Expense deleted", "group_id", expense.GroupID, "expense_id", expenseID, "actor", actor, "state", expense.State)
	return nil
}

// SetExpenseState approves or rejects a pending expense. Only a group admin may
// decide. The transition is a compare-and-swap on pending, so of two concurrent
// decisions exactly one wins and the other gets ErrState.
func (e *Engine) SetExpenseState(ctx context.Context, actor, expenseID string, to models.State) (*models.Expense, error) {
	const op = "SetExpenseState"

	if !to.Terminal() {
		return nil, invalidf(op, "target state must be approved or rejected, got %q", to)
	}
	expense, gc, err := e.expenseAs(ctx, op, actor, expenseID)
	if err != nil {
		return nil, err
	}
	if !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only a group admin can approve or reject expenses")
	}
	if !expense.State.CanTransition(to) {
		return nil, stateErrorf(op, "expense is already %s", expense.State)
	}

	at := e.now().Unix()
	if err := e.ledger.TransitionExpense(ctx, expenseID, models.StatePending, to, actor, at); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, stateErrorf(op, "expense is no longer pending")
		}
		return nil, fromStorage(op, err)
	}
	expense.State = to
	expense.DecidedBy = actor
	expense.DecidedAt = at

	e.metrics.Transition("expense", string(to))
	slog.InfoContext(ctx, "Expense decided", "group_id", expense.GroupID, "expense_id", expenseID, "state", to, "actor", actor)

	kind := notify.ExpenseApproved
	if to == models.StateRejected {
		kind = notify.ExpenseRejected
	}
	e.notify(ctx, notify.Event{
		Kind:       kind,
		Group:      *gc.group,
		Actor:      actor,
		Expense:    expense,
		Recipients: gc.recipients(actor, expense.CreatedBy, expense.PayerID),
	})
	return expense, nil
}

// GetExpense returns one expense. The actor must be a member of its group.
func (e *Engine) GetExpense(ctx context.Context, actor, expenseID string) (*models.Expense, error) {
	const op = "GetExpense"

	expense, _, err := e.expenseAs(ctx, op, actor, expenseID)
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// expenseAs loads an expense and its group for a member of that group.
func (e *Engine) expenseAs(ctx context.Context, op, actor, expenseID string) (*models.Expense, *groupContext, error) {
	expense, err := e.ledger.GetExpense(ctx, expenseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, entryNotFound(op, "expense", expenseID)
	}
	if err != nil {
		return nil, nil, fromStorage(op, err)
	}
	gc, err := e.loadEntryGroup(ctx, op, "expense", expenseID, expense.GroupID, actor)
	if err != nil {
		return nil, nil, err
	}
	return expense, gc, nil
}

// ListExpenses returns the group's expenses, newest first, optionally by state.
func (e *Engine) ListExpenses(ctx context.Context, actor, groupID string, state models.State) ([]models.Expense, error) {
	const op = "ListExpenses"

	if state != "" {
		if _, err := models.ParseState(string(state)); err != nil {
			return nil, invalid(op, err)
		}
	}
	if _, err := e.loadGroupAs(ctx, op, groupID, actor); err != nil {
		return nil, err
	}
	expenses, err := e.ledger.ListExpenses(ctx, groupID, storage.EntryFilter{State: state})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return expenses, nil
}
