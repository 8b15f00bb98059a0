package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mmynk/splitledger/internal/gateway"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitiateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*gateway.TransferResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, ev notify.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// mockLedger stubs storage.Ledger. Only the methods a test sets up may be called.
type mockLedger struct {
	mock.Mock
}

var _ storage.Ledger = (*mockLedger)(nil)

func (m *mockLedger) CreateExpense(ctx context.Context, expense *models.Expense) error {
	return m.Called(ctx, expense).Error(0)
}

func (m *mockLedger) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	args := m.Called(ctx, expenseID)
	if e, ok := args.Get(0).(*models.Expense); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) UpdatePendingExpense(ctx context.Context, expense *models.Expense) error {
	return m.Called(ctx, expense).Error(0)
}

func (m *mockLedger) DeleteExpense(ctx context.Context, expenseID string, pendingOnly bool) error {
	return m.Called(ctx, expenseID, pendingOnly).Error(0)
}

func (m *mockLedger) ListExpenses(ctx context.Context, groupID string, filter storage.EntryFilter) ([]models.Expense, error) {
	args := m.Called(ctx, groupID, filter)
	expenses, _ := args.Get(0).([]models.Expense)
	return expenses, args.Error(1)
}

func (m *mockLedger) TransitionExpense(ctx context.Context, expenseID string, from, to models.State, actor string, at int64) error {
	return m.Called(ctx, expenseID, from, to, actor, at).Error(0)
}

func (m *mockLedger) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

func (m *mockLedger) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	args := m.Called(ctx, reference)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) GetPaymentByIdempotencyKey(ctx context.Context, groupID, key string) (*models.Payment, error) {
	args := m.Called(ctx, groupID, key)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) DeletePayment(ctx context.Context, paymentID string, pendingOnly bool) error {
	return m.Called(ctx, paymentID, pendingOnly).Error(0)
}

func (m *mockLedger) ListPayments(ctx context.Context, groupID string, filter storage.EntryFilter) ([]models.Payment, error) {
	args := m.Called(ctx, groupID, filter)
	payments, _ := args.Get(0).([]models.Payment)
	return payments, args.Error(1)
}

func (m *mockLedger) TransitionPayment(ctx context.Context, paymentID string, from, to models.State, actor string, at int64) error {
	return m.Called(ctx, paymentID, from, to, actor, at).Error(0)
}

func (m *mockLedger) LoadApproved(ctx context.Context, groupID string) (*storage.ApprovedSet, error) {
	args := m.Called(ctx, groupID)
	if set, ok := args.Get(0).(*storage.ApprovedSet); ok {
		return set, args.Error(1)
	}
	return nil, args.Error(1)
}
