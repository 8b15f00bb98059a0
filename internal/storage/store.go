// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// Registry is the source of truth for who belongs to a group.
type Registry interface {
	// GetGroup retrieves a group by its ID.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListMembers returns the group's members ordered by ID.
	ListMembers(ctx context.Context, groupID string) ([]models.Member, error)

	// GetMember returns one member of the group.
	// Returns ErrNotFound if the member does not belong to the group.
	GetMember(ctx context.Context, groupID, memberID string) (*models.Member, error)

	// IsMember reports whether memberID belongs to the group.
	IsMember(ctx context.Context, groupID, memberID string) (bool, error)
}

// GroupStore is a Registry that can also create groups and add members.
type GroupStore interface {
	Registry

	// CreateGroup persists a group with its initial members. The ID is generated if empty.
	CreateGroup(ctx context.Context, group *models.Group, members []models.Member) error

	// AddGroupMember adds one member. Returns ErrDuplicate if already a member.
	AddGroupMember(ctx context.Context, groupID string, member *models.Member) error
}

// EntryFilter narrows ListExpenses and ListPayments results.
// Zero values match everything.
type EntryFilter struct {
	State models.State
}

// ApprovedSet is every approved entry of a group, read under one consistent snapshot.
type ApprovedSet struct {
	Expenses []models.Expense
	Payments []models.Payment
}

// Ledger stores expenses and payments.
//
// Transition methods have compare-and-swap semantics: they succeed only if the
// entry is currently in state from, and return ErrConflict otherwise.
type Ledger interface {
	// CreateExpense persists a new expense with its shares. The ID is generated if empty.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense with its shares.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdatePendingExpense replaces the mutable fields and shares of a pending expense.
	// Returns ErrConflict if the expense is no longer pending.
	UpdatePendingExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense. With pendingOnly set, only a pending
	// expense is removed and ErrConflict is returned otherwise.
	DeleteExpense(ctx context.Context, expenseID string, pendingOnly bool) error

	// ListExpenses returns a group's expenses, newest first.
	ListExpenses(ctx context.Context, groupID string, filter EntryFilter) ([]models.Expense, error)

	// TransitionExpense moves an expense from one state to another.
	TransitionExpense(ctx context.Context, expenseID string, from, to models.State, actor string, at int64) error

	// CreatePayment persists a new payment. Returns ErrDuplicate if the idempotency key
	// or gateway reference is already used.
	CreatePayment(ctx context.Context, payment *models.Payment) error

	// GetPayment retrieves a payment by ID.
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	// GetPaymentByReference retrieves a payment by its gateway reference.
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)

	// GetPaymentByIdempotencyKey retrieves a group's payment by its idempotency key.
	GetPaymentByIdempotencyKey(ctx context.Context, groupID, key string) (*models.Payment, error)

	// DeletePayment removes a payment. With pendingOnly set, only a pending
	// payment is removed and ErrConflict is returned otherwise.
	DeletePayment(ctx context.Context, paymentID string, pendingOnly bool) error

	// ListPayments returns a group's payments, newest first.
	ListPayments(ctx context.Context, groupID string, filter EntryFilter) ([]models.Payment, error)

	// TransitionPayment moves a payment from one state to another.
	TransitionPayment(ctx context.Context, paymentID string, from, to models.State, actor string, at int64) error

	// LoadApproved reads all approved expenses and payments of a group in one
	// read-only transaction, so no entry is observed half-transitioned.
	LoadApproved(ctx context.Context, groupID string) (*ApprovedSet, error)
}

// RecurringStore stores recurring expense templates.
type RecurringStore interface {
	CreateRecurring(ctx context.Context, r *models.RecurringExpense) error
	GetRecurring(ctx context.Context, id string) (*models.RecurringExpense, error)

	// ListRecurring returns a group's templates, newest first.
	ListRecurring(ctx context.Context, groupID string) ([]models.RecurringExpense, error)

	// UpdateRecurring replaces a template's fields and shares. StartAt and NextAt
	// are only written while the template has never run.
	UpdateRecurring(ctx context.Context, r *models.RecurringExpense) error

	DeleteRecurring(ctx context.Context, id string) error

	ListDueRecurring(ctx context.Context, now int64) ([]models.RecurringExpense, error)
	SetRecurringPaused(ctx context.Context, id string, paused bool) error

	// AdvanceRecurring moves the template from its current next occurrence to next.
	// Returns ErrConflict if another runner already advanced it.
	AdvanceRecurring(ctx context.Context, id string, from, next, ranAt int64) error
}
