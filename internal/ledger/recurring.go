package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// RecurringInput describes a recurring expense template.
type RecurringInput struct {
	Expense   ExpenseInput
	Frequency models.Frequency
	Interval  int
	StartAt   int64
	EndAt     int64
}

var errNoRecurring = errors.New("recurring expenses are not configured")

// CreateRecurring stores a template that the scheduler turns into pending expenses.
// The split is validated now against the current members.
func (e *Engine) CreateRecurring(ctx context.Context, actor string, in RecurringInput) (*models.RecurringExpense, error) {
	const op = "CreateRecurring"

	if e.recurring == nil {
		return nil, unavailable(op, errNoRecurring)
	}
	if in.StartAt == 0 {
		in.StartAt = e.now().Unix()
	}
	if err := validateSchedule(op, &in); err != nil {
		return nil, err
	}

	gc, err := e.loadGroupAs(ctx, op, in.Expense.GroupID, actor)
	if err != nil {
		return nil, err
	}
	r := &models.RecurringExpense{
		CreatedBy: actor,
		CreatedAt: e.now().Unix(),
	}
	if err := e.applyTemplate(op, gc, r, in); err != nil {
		return nil, err
	}
	r.NextAt = r.StartAt

	if err := e.recurring.CreateRecurring(ctx, r); err != nil {
		return nil, fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Recurring expense created", "group_id", r.GroupID, "recurring_id", r.ID, "frequency", r.Frequency)
	return r, nil
}

func validateSchedule(op string, in *RecurringInput) error {
	switch in.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyYearly:
	default:
		return invalidf(op, "unknown frequency %q", in.Frequency)
	}
	if in.Interval < 0 {
		return invalidf(op, "interval must not be negative")
	}
	if in.Interval == 0 {
		in.Interval = 1
	}
	if in.EndAt != 0 && in.EndAt < in.StartAt {
		return invalidf(op, "end must not be before start")
	}
	return nil
}

// applyTemplate validates in.Expense against the group and copies it with the
// schedule into r.
func (e *Engine) applyTemplate(op string, gc *groupContext, r *models.RecurringExpense, in RecurringInput) error {
	expense, err := e.buildExpense(op, gc, in.Expense)
	if err != nil {
		return err
	}
	r.GroupID = expense.GroupID
	r.PayerID = expense.PayerID
	r.Total = expense.Total
	r.Description = expense.Description
	r.Category = expense.Category
	r.Policy = expense.Policy
	r.Shares = expense.Shares
	r.Frequency = in.Frequency
	r.Interval = in.Interval
	r.StartAt = in.StartAt
	r.EndAt = in.EndAt
	return nil
}

// recurringAs loads a template and its group for a member of that group.
func (e *Engine) recurringAs(ctx context.Context, op, actor, recurringID string) (*models.RecurringExpense, *groupContext, error) {
	if e.recurring == nil {
		return nil, nil, unavailable(op, errNoRecurring)
	}
	r, err := e.recurring.GetRecurring(ctx, recurringID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, entryNotFound(op, "recurring expense", recurringID)
	}
	if err != nil {
		return nil, nil, fromStorage(op, err)
	}
	gc, err := e.loadEntryGroup(ctx, op, "recurring expense", recurringID, r.GroupID, actor)
	if err != nil {
		return nil, nil, err
	}
	return r, gc, nil
}

// GetRecurring returns one template. The actor must be a member of its group.
func (e *Engine) GetRecurring(ctx context.Context, actor, recurringID string) (*models.RecurringExpense, error) {
	r, _, err := e.recurringAs(ctx, "GetRecurring", actor, recurringID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecurring returns the group's templates, newest first.
func (e *Engine) ListRecurring(ctx context.Context, actor, groupID string) ([]models.RecurringExpense, error) {
	const op = "ListRecurring"

	if e.recurring == nil {
		return nil, unavailable(op, errNoRecurring)
	}
	if _, err := e.loadGroupAs(ctx, op, groupID, actor); err != nil {
		return nil, err
	}
	list, err := e.recurring.ListRecurring(ctx, groupID)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return list, nil
}

// UpdateRecurring replaces a template's expense and schedule. The creator or an
// admin may do this. Expenses already produced are not touched. The start may
// only move before the first occurrence has been produced; a zero StartAt keeps
// the current one.
func (e *Engine) UpdateRecurring(ctx context.Context, actor, recurringID string, in RecurringInput) (*models.RecurringExpense, error) {
	const op = "UpdateRecurring"

	current, gc, err := e.recurringAs(ctx, op, actor, recurringID)
	if err != nil {
		return nil, err
	}
	if actor != current.CreatedBy && !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only the creator or an admin can edit this recurring expense")
	}
	if in.Expense.GroupID == "" {
		in.Expense.GroupID = current.GroupID
	}
	if in.Expense.GroupID != current.GroupID {
		return nil, invalidf(op, "recurring expense %s belongs to another group", recurringID)
	}
	if in.StartAt == 0 {
		in.StartAt = current.StartAt
	}
	if in.StartAt != current.StartAt && current.LastRunAt != 0 {
		return nil, stateErrorf(op, "start cannot move after the first occurrence")
	}
	if err := validateSchedule(op, &in); err != nil {
		return nil, err
	}

	updated := *current
	if err := e.applyTemplate(op, gc, &updated, in); err != nil {
		return nil, err
	}
	if current.LastRunAt == 0 {
		updated.NextAt = updated.StartAt
	}

	if err := e.recurring.UpdateRecurring(ctx, &updated); err != nil {
		return nil, fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Recurring expense updated", "group_id", updated.GroupID, "recurring_id", updated.ID, "actor", actor)
	return &updated, nil
}

// DeleteRecurring removes a template. The creator or an admin may do this.
// Expenses it already produced stay in the ledger.
func (e *Engine) DeleteRecurring(ctx context.Context, actor, recurringID string) error {
	const op = "DeleteRecurring"

	r, gc, err := e.recurringAs(ctx, op, actor, recurringID)
	if err != nil {
		return err
	}
	if actor != r.CreatedBy && !gc.isAdmin(actor) {
		return unauthorizedf(op, "only the creator or an admin can delete this recurring expense")
	}
	if err := e.recurring.DeleteRecurring(ctx, recurringID); err != nil {
		return fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Recurring expense deleted", "group_id", r.GroupID, "recurring_id", recurringID, "actor", actor)
	return nil
}

// SetRecurringPaused pauses or resumes a template. The creator or an admin may do this.
func (e *Engine) SetRecurringPaused(ctx context.Context, actor, recurringID string, paused bool) error {
	const op = "SetRecurringPaused"

	r, gc, err := e.recurringAs(ctx, op, actor, recurringID)
	if err != nil {
		return err
	}
	if actor != r.CreatedBy && !gc.isAdmin(actor) {
		return unauthorizedf(op, "only the creator or an admin can pause this recurring expense")
	}
	if err := e.recurring.SetRecurringPaused(ctx, recurringID, paused); err != nil {
		return fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Recurring expense updated", "recurring_id", recurringID, "paused", paused)
	return nil
}

// RunRecurring materializes every template due at now into a pending expense and
// returns how many were created. A template is advanced before its expense is
// written, so concurrent runners never create the same occurrence twice; a missed
// write is logged and skipped rather than retried.
func (e *Engine) RunRecurring(ctx context.Context, now time.Time) (int, error) {
	const op = "RunRecurring"

	if e.recurring == nil {
		return 0, unavailable(op, errNoRecurring)
	}
	due, err := e.recurring.ListDueRecurring(ctx, now.Unix())
	if err != nil {
		return 0, unavailable(op, err)
	}

	created := 0
	for i := range due {
		r := &due[i]
		if !r.Due(now) {
			continue
		}
		ok, err := e.runOne(ctx, r, now)
		switch {
		case err != nil:
			e.metrics.RecurringRun("failed")
			slog.WarnContext(ctx, "Recurring expense failed", "recurring_id", r.ID, "group_id", r.GroupID, "error", err)
		case ok:
			e.metrics.RecurringRun("created")
			created++
		default:
			e.metrics.RecurringRun("skipped")
		}
	}
	if created > 0 {
		slog.InfoContext(ctx, "Recurring expenses materialized", "count", created)
	}
	return created, nil
}

func (e *Engine) runOne(ctx context.Context, r *models.RecurringExpense, now time.Time) (bool, error) {
	occurrence := r.NextAt
	next, err := r.Next(time.Unix(occurrence, 0).UTC())
	if err != nil {
		return false, err
	}
	if err := e.recurring.AdvanceRecurring(ctx, r.ID, occurrence, next.Unix(), now.Unix()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			slog.DebugContext(ctx, "Recurring expense already advanced", "recurring_id", r.ID)
			return false, nil
		}
		return false, err
	}

	gc, err := e.loadGroup(ctx, "RunRecurring", r.GroupID)
	if err != nil {
		return false, err
	}
	split, err := templateSplit(r)
	if err != nil {
		return false, err
	}
	expense, err := e.buildExpense("RunRecurring", gc, ExpenseInput{
		GroupID:     r.GroupID,
		PayerID:     r.PayerID,
		Total:       r.Total,
		Description: r.Description,
		Category:    r.Category,
		OccurredAt:  occurrence,
		Split:       split,
	})
	if err != nil {
		return false, err
	}
	expense.State = models.StatePending
	expense.CreatedBy = r.CreatedBy
	expense.CreatedAt = now.Unix()
	expense.RecurringID = r.ID

	if err := e.ledger.CreateExpense(ctx, expense); err != nil {
		return false, err
	}
	e.metrics.EntryCreated("expense")
	slog.InfoContext(ctx, "Recurring expense materialized",
		"recurring_id", r.ID,
		"expense_id", expense.ID,
		"group_id", r.GroupID,
		"occurred_at", occurrence,
	)
	return true, nil
}

// templateSplit rebuilds the split input a template was created with.
func templateSplit(r *models.RecurringExpense) (calculator.SplitInput, error) {
	switch r.Policy {
	case models.SplitEqual:
		ids := make([]string, len(r.Shares))
		for i, s := range r.Shares {
			ids[i] = s.MemberID
		}
		return calculator.EqualSplit{Participants: ids}, nil
	case models.SplitExact:
		amounts := make(map[string]money.Money, len(r.Shares))
		for _, s := range r.Shares {
			amounts[s.MemberID] = s.Amount
		}
		return calculator.ExactSplit{Amounts: amounts}, nil
	case models.SplitPercentage:
		pcts := make(map[string]decimal.Decimal, len(r.Shares))
		for _, s := range r.Shares {
			d, err := decimal.NewFromString(strings.TrimSpace(s.Percentage))
			if err != nil {
				return nil, fmt.Errorf("template share for %s: %w", s.MemberID, err)
			}
			pcts[s.MemberID] = d
		}
		return calculator.PercentageSplit{Percentages: pcts}, nil
	}
	return nil, fmt.Errorf("%w: %q", calculator.ErrUnknownPolicy, r.Policy)
}
