package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/gateway"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

func usd(minor int64) money.Money { return money.New(minor, "USD") }

type fixture struct {
	engine  *Engine
	store   *sqlite.SQLiteStore
	groupID string
	now     time.Time
}

// newFixture creates a sqlite-backed engine and a USD group where "a" is admin
// and "b", "c" are members.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, now: time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(func() time.Time { return f.now }), WithRecurringStore(store)}, opts...)
	f.engine = New(store, store, opts...)

	group, _, err := f.engine.CreateGroup(context.Background(), "a", "Flat", "usd", []models.Member{
		{ID: "b", Name: "Bea", Email: "b@example.com"},
		{ID: "c", Name: "Cal"},
	})
	require.NoError(t, err)
	f.groupID = group.ID
	return f
}

func (f *fixture) equalExpense(t *testing.T, actor, payer string, total int64) *models.Expense {
	t.Helper()
	e, err := f.engine.CreateExpense(context.Background(), actor, ExpenseInput{
		GroupID:     f.groupID,
		PayerID:     payer,
		Total:       usd(total),
		Description: "Dinner",
		Split:       calculator.EqualSplit{},
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) balances(t *testing.T) map[string]int64 {
	t.Helper()
	snap, err := f.engine.GetBalances(context.Background(), "a", f.groupID)
	require.NoError(t, err)
	out := make(map[string]int64, len(snap.Balances))
	for id, m := range snap.Balances {
		out[id] = m.Amount
	}
	return out
}

func TestSettlementScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expense := f.equalExpense(t, "a", "a", 30000)
	assert.Equal(t, models.StatePending, expense.State)
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, f.balances(t))

	_, err := f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateApproved)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 20000, "b": -10000, "c": -10000}, f.balances(t))

	payment, err := f.engine.CreatePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(10000)})
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, payment.Method)

	_, err = f.engine.SetPaymentState(ctx, "a", payment.ID, models.StateApproved)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 10000, "b": 0, "c": -10000}, f.balances(t))

	transfers, err := f.engine.GetSettlementSuggestions(ctx, "b", f.groupID)
	require.NoError(t, err)
	assert.Equal(t, []calculator.Transfer{{From: "c", To: "a", Amount: usd(10000)}}, transfers)

	debts, err := f.engine.GetMemberDebts(ctx, "a", f.groupID, "a")
	require.NoError(t, err)
	assert.Equal(t, []calculator.Debt{{Counterparty: "c", Amount: usd(10000)}}, debts)

	debts, err = f.engine.GetMemberDebts(ctx, "c", f.groupID, "")
	require.NoError(t, err)
	assert.Equal(t, []calculator.Debt{{Counterparty: "a", Amount: usd(-10000)}}, debts)

	debts, err = f.engine.GetMemberDebts(ctx, "a", f.groupID, "b")
	require.NoError(t, err)
	assert.Empty(t, debts)

	_, err = f.engine.GetMemberDebts(ctx, "a", f.groupID, "zed")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectedExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.balances(t)
	expense := f.equalExpense(t, "b", "b", 900)

	rejected, err := f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateRejected)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, rejected.State)
	assert.Equal(t, "a", rejected.DecidedBy)
	assert.Equal(t, before, f.balances(t))

	_, err = f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateApproved)
	assert.ErrorIs(t, err, ErrState)
	assert.Equal(t, before, f.balances(t))
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("only admins approve expenses", func(t *testing.T) {
		expense := f.equalExpense(t, "b", "b", 300)
		_, err := f.engine.SetExpenseState(ctx, "b", expense.ID, models.StateApproved)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, err, ErrState)

		got, err := f.engine.GetExpense(ctx, "c", expense.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, got.State)
	})

	t.Run("target must be terminal", func(t *testing.T) {
		expense := f.equalExpense(t, "b", "b", 300)
		_, err := f.engine.SetExpenseState(ctx, "a", expense.ID, models.StatePending)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("payee or admin decides payments", func(t *testing.T) {
		p, err := f.engine.CreatePayment(ctx, "c", PaymentInput{GroupID: f.groupID, PayerID: "c", PayeeID: "b", Amount: usd(100)})
		require.NoError(t, err)

		_, err = f.engine.SetPaymentState(ctx, "c", p.ID, models.StateApproved)
		assert.ErrorIs(t, err, ErrUnauthorized)

		decided, err := f.engine.SetPaymentState(ctx, "b", p.ID, models.StateApproved)
		require.NoError(t, err)
		assert.Equal(t, "b", decided.DecidedBy)

		_, err = f.engine.SetPaymentState(ctx, "a", p.ID, models.StateRejected)
		assert.ErrorIs(t, err, ErrState)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := f.engine.SetExpenseState(ctx, "a", "missing", models.StateApproved)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.engine.SetPaymentState(ctx, "a", "missing", models.StateApproved)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("outsiders cannot read", func(t *testing.T) {
		_, err := f.engine.GetBalances(ctx, "mallory", f.groupID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("outsiders cannot tell entries apart from missing ones", func(t *testing.T) {
		expense := f.equalExpense(t, "a", "a", 300)
		_, err := f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateApproved)
		require.NoError(t, err)
		p, err := f.engine.CreatePayment(ctx, "c", PaymentInput{GroupID: f.groupID, PayerID: "c", PayeeID: "a", Amount: usd(100)})
		require.NoError(t, err)
		_, err = f.engine.SetPaymentState(ctx, "a", p.ID, models.StateRejected)
		require.NoError(t, err)

		message := func(err error) string {
			var le *Error
			require.ErrorAs(t, err, &le)
			return le.Message()
		}

		_, hidden := f.engine.SetExpenseState(ctx, "mallory", expense.ID, models.StateApproved)
		_, missing := f.engine.SetExpenseState(ctx, "mallory", "nope", models.StateApproved)
		assert.ErrorIs(t, hidden, ErrNotFound)
		assert.NotErrorIs(t, hidden, ErrState)
		assert.Equal(t, strings.Replace(message(missing), "nope", expense.ID, 1), message(hidden))

		_, hidden = f.engine.SetPaymentState(ctx, "mallory", p.ID, models.StateApproved)
		_, missing = f.engine.SetPaymentState(ctx, "mallory", "nope", models.StateApproved)
		assert.ErrorIs(t, hidden, ErrNotFound)
		assert.NotErrorIs(t, hidden, ErrState)
		assert.Equal(t, strings.Replace(message(missing), "nope", p.ID, 1), message(hidden))

		_, err = f.engine.GetExpense(ctx, "mallory", expense.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.engine.GetPayment(ctx, "mallory", p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, f.engine.DeleteExpense(ctx, "mallory", expense.ID), ErrNotFound)
		assert.ErrorIs(t, f.engine.DeletePayment(ctx, "mallory", p.ID), ErrNotFound)
	})
}

func TestConcurrentDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expense := f.equalExpense(t, "a", "a", 600)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := models.StateApproved
			if i%2 == 1 {
				to = models.StateRejected
			}
			_, errs[i] = f.engine.SetExpenseState(ctx, "a", expense.ID, to)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrState)
	}
	assert.Equal(t, 1, wins)
}

func TestCreateExpenseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor string
		in    ExpenseInput
		kind  error
	}{
		{
			name:  "non-member participant",
			actor: "a",
			in:    ExpenseInput{PayerID: "a", Total: usd(300), Description: "x", Split: calculator.EqualSplit{Participants: []string{"a", "zed"}}},
			kind:  ErrValidation,
		},
		{
			name:  "exact shares do not sum",
			actor: "a",
			in: ExpenseInput{PayerID: "a", Total: usd(300), Description: "x", Split: calculator.ExactSplit{Amounts: map[string]money.Money{
				"a": usd(100), "b": usd(100),
			}}},
			kind: ErrValidation,
		},
		{
			name:  "percentages do not sum",
			actor: "a",
			in: ExpenseInput{PayerID: "a", Total: usd(300), Description: "x", Split: calculator.PercentageSplit{Percentages: map[string]decimal.Decimal{
				"a": decimal.NewFromInt(50), "b": decimal.NewFromInt(40),
			}}},
			kind: ErrValidation,
		},
		{
			name:  "non-positive total",
			actor: "a",
			in:    ExpenseInput{PayerID: "a", Total: usd(0), Description: "x", Split: calculator.EqualSplit{}},
			kind:  ErrValidation,
		},
		{
			name:  "currency mismatch",
			actor: "a",
			in:    ExpenseInput{PayerID: "a", Total: money.New(300, "EUR"), Description: "x", Split: calculator.EqualSplit{}},
			kind:  ErrValidation,
		},
		{
			name:  "payer not a member",
			actor: "a",
			in:    ExpenseInput{PayerID: "zed", Total: usd(300), Description: "x", Split: calculator.EqualSplit{}},
			kind:  ErrValidation,
		},
		{
			name:  "missing description",
			actor: "a",
			in:    ExpenseInput{PayerID: "a", Total: usd(300), Split: calculator.EqualSplit{}},
			kind:  ErrValidation,
		},
		{
			name:  "actor not a member",
			actor: "zed",
			in:    ExpenseInput{PayerID: "a", Total: usd(300), Description: "x", Split: calculator.EqualSplit{}},
			kind:  ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.GroupID = f.groupID
			_, err := f.engine.CreateExpense(ctx, tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	expenses, err := f.engine.ListExpenses(ctx, "a", f.groupID, "")
	require.NoError(t, err)
	assert.Empty(t, expenses, "failed creations must not write anything")

	_, err = f.engine.CreateExpense(ctx, "a", ExpenseInput{GroupID: "missing", PayerID: "a", Total: usd(1), Description: "x", Split: calculator.EqualSplit{}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expense := f.equalExpense(t, "b", "b", 300)
	edit := ExpenseInput{
		PayerID:     "b",
		Total:       usd(400),
		Description: "Dinner and drinks",
		Split:       calculator.ExactSplit{Amounts: map[string]money.Money{"b": usd(150), "c": usd(250)}},
	}

	_, err := f.engine.UpdateExpense(ctx, "c", expense.ID, edit)
	assert.ErrorIs(t, err, ErrUnauthorized)

	updated, err := f.engine.UpdateExpense(ctx, "b", expense.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, models.SplitExact, updated.Policy)
	assert.Equal(t, usd(250), updated.ShareOf("c"))

	_, err = f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateApproved)
	require.NoError(t, err)

	_, err = f.engine.UpdateExpense(ctx, "b", expense.ID, edit)
	assert.ErrorIs(t, err, ErrState)
	assert.ErrorIs(t, f.engine.DeleteExpense(ctx, "b", expense.ID), ErrState)

	// Admins may remove approved entries.
	require.NoError(t, f.engine.DeleteExpense(ctx, "a", expense.ID))
	_, err = f.engine.GetExpense(ctx, "a", expense.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	pending := f.equalExpense(t, "c", "c", 300)
	require.NoError(t, f.engine.DeleteExpense(ctx, "c", pending.ID))

	p, err := f.engine.CreatePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "c", Amount: usd(10)})
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.DeletePayment(ctx, "c", p.ID), ErrUnauthorized)
	require.NoError(t, f.engine.DeletePayment(ctx, "b", p.ID))
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		cases := map[string]PaymentInput{
			"self payment":     {PayerID: "b", PayeeID: "b", Amount: usd(100)},
			"zero amount":      {PayerID: "b", PayeeID: "a", Amount: usd(0)},
			"negative amount":  {PayerID: "b", PayeeID: "a", Amount: usd(-5)},
			"non-member payee": {PayerID: "b", PayeeID: "zed", Amount: usd(100)},
			"wrong currency":   {PayerID: "b", PayeeID: "a", Amount: money.New(100, "VND")},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				in.GroupID = f.groupID
				_, err := f.engine.CreatePayment(ctx, "b", in)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
	})

	t.Run("members cannot pay for others", func(t *testing.T) {
		_, err := f.engine.CreatePayment(ctx, "c", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(100)})
		assert.ErrorIs(t, err, ErrUnauthorized)

		p, err := f.engine.CreatePayment(ctx, "a", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "c", Amount: usd(100)})
		require.NoError(t, err)
		assert.Equal(t, "a", p.CreatedBy)
	})

	t.Run("idempotency key", func(t *testing.T) {
		in := PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(2500), IdempotencyKey: "settle-1"}
		first, err := f.engine.CreatePayment(ctx, "b", in)
		require.NoError(t, err)
		assert.NotEmpty(t, first.Fingerprint)

		again, err := f.engine.CreatePayment(ctx, "b", in)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)

		in.Amount = usd(2600)
		_, err = f.engine.CreatePayment(ctx, "b", in)
		assert.ErrorIs(t, err, ErrValidation)

		payments, err := f.engine.ListPayments(ctx, "a", f.groupID, models.StatePending)
		require.NoError(t, err)
		count := 0
		for _, p := range payments {
			if p.IdempotencyKey == "settle-1" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestNotifications(t *testing.T) {
	notifier := new(mockNotifier)
	f := newFixture(t, WithNotifier(notifier))
	ctx := context.Background()

	expense := f.equalExpense(t, "b", "b", 300)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Kind == notify.ExpenseApproved &&
			ev.Expense.ID == expense.ID &&
			len(ev.Recipients) == 1 && ev.Recipients[0].Email == "b@example.com"
	})).Return(errors.New("smtp down")).Once()

	_, err := f.engine.SetExpenseState(ctx, "a", expense.ID, models.StateApproved)
	require.NoError(t, err, "notification failures must not fail the transition")
	notifier.AssertExpectations(t)
}

func TestOnlinePayment(t *testing.T) {
	gw := new(mockGateway)
	f := newFixture(t, WithGateway(gw, "https://ledger.example/return"))
	ctx := context.Background()

	gw.On("InitiateTransfer", mock.Anything, mock.MatchedBy(func(req gateway.TransferRequest) bool {
		return req.PayerID == "b" && req.PayeeID == "a" && req.Amount == usd(5000) &&
			req.Reference != "" && req.ReturnURL == "https://ledger.example/return"
	})).Return(&gateway.TransferResult{Reference: "gw-1", CheckoutURL: "https://pay.example/1"}, nil).Once()

	online, err := f.engine.InitiateOnlinePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(5000)})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/1", online.CheckoutURL)
	assert.Equal(t, models.StatePending, online.Payment.State)
	assert.Equal(t, models.MethodGateway, online.Payment.Method)
	assert.Equal(t, "gw-1", online.Payment.GatewayReference)
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, f.balances(t))

	p, err := f.engine.HandleGatewayCallback(ctx, paid("gw-1", true, 5000))
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, p.State)
	assert.Equal(t, SystemActor, p.DecidedBy)
	assert.Equal(t, map[string]int64{"a": -5000, "b": 5000, "c": 0}, f.balances(t))

	again, err := f.engine.HandleGatewayCallback(ctx, paid("gw-1", true, 5000))
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	_, err = f.engine.HandleGatewayCallback(ctx, paid("gw-1", false, 5000))
	assert.ErrorIs(t, err, ErrState)

	_, err = f.engine.HandleGatewayCallback(ctx, paid("unknown", true, 5000))
	assert.ErrorIs(t, err, ErrNotFound)
	gw.AssertExpectations(t)
}

func paid(reference string, succeeded bool, amount int64) gateway.Callback {
	return gateway.Callback{Reference: reference, Succeeded: succeeded, Amount: usd(amount)}
}

func TestOnlinePaymentIdempotency(t *testing.T) {
	ctx := context.Background()
	in := PaymentInput{GroupID: "", PayerID: "b", PayeeID: "a", Amount: usd(5000), IdempotencyKey: "k1"}

	t.Run("retry does not open a second transfer", func(t *testing.T) {
		gw := new(mockGateway)
		f := newFixture(t, WithGateway(gw, ""))
		in := in
		in.GroupID = f.groupID

		gw.On("InitiateTransfer", mock.Anything, mock.Anything).
			Return(&gateway.TransferResult{Reference: "gw-1", CheckoutURL: "https://pay.example/1"}, nil)

		first, err := f.engine.InitiateOnlinePayment(ctx, "b", in)
		require.NoError(t, err)
		second, err := f.engine.InitiateOnlinePayment(ctx, "b", in)
		require.NoError(t, err)

		gw.AssertNumberOfCalls(t, "InitiateTransfer", 1)
		assert.Equal(t, first.Payment.ID, second.Payment.ID)
		assert.Equal(t, "https://pay.example/1", second.CheckoutURL)
		assert.Equal(t, "gw-1", second.Payment.GatewayReference)

		in.Amount = usd(4000)
		_, err = f.engine.InitiateOnlinePayment(ctx, "b", in)
		assert.ErrorIs(t, err, ErrValidation)
		gw.AssertNumberOfCalls(t, "InitiateTransfer", 1)

		payments, err := f.engine.ListPayments(ctx, "a", f.groupID, "")
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("retry after a gateway error reuses the reference", func(t *testing.T) {
		gw := new(mockGateway)
		f := newFixture(t, WithGateway(gw, ""))
		in := in
		in.GroupID = f.groupID

		var refs []string
		record := func(args mock.Arguments) {
			refs = append(refs, args.Get(1).(gateway.TransferRequest).Reference)
		}
		gw.On("InitiateTransfer", mock.Anything, mock.Anything).Run(record).Return(nil, errors.New("timeout")).Once()
		gw.On("InitiateTransfer", mock.Anything, mock.Anything).Run(record).Return(&gateway.TransferResult{Reference: "gw-1"}, nil).Once()

		_, err := f.engine.InitiateOnlinePayment(ctx, "b", in)
		assert.ErrorIs(t, err, ErrUnavailable)
		_, err = f.engine.InitiateOnlinePayment(ctx, "b", in)
		require.NoError(t, err)

		gw.AssertExpectations(t)
		require.Len(t, refs, 2)
		assert.NotEmpty(t, refs[0])
		assert.Equal(t, refs[0], refs[1])

		// Unkeyed payments get a fresh reference each time.
		gw.On("InitiateTransfer", mock.Anything, mock.Anything).Run(record).Return(&gateway.TransferResult{Reference: "gw-2"}, nil).Once()
		in.IdempotencyKey = ""
		_, err = f.engine.InitiateOnlinePayment(ctx, "b", in)
		require.NoError(t, err)
		require.Len(t, refs, 3)
		assert.NotEqual(t, refs[0], refs[2])
	})

	t.Run("manual payment key is not reused online", func(t *testing.T) {
		gw := new(mockGateway)
		f := newFixture(t, WithGateway(gw, ""))
		in := in
		in.GroupID = f.groupID

		_, err := f.engine.CreatePayment(ctx, "b", in)
		require.NoError(t, err)
		_, err = f.engine.InitiateOnlinePayment(ctx, "b", in)
		assert.ErrorIs(t, err, ErrValidation)
		gw.AssertNotCalled(t, "InitiateTransfer", mock.Anything, mock.Anything)
	})
}

func TestGatewayCallbackAmount(t *testing.T) {
	gw := new(mockGateway)
	gw.On("InitiateTransfer", mock.Anything, mock.Anything).Return(&gateway.TransferResult{Reference: "gw-1"}, nil).Once()
	f := newFixture(t, WithGateway(gw, ""))
	ctx := context.Background()

	online, err := f.engine.InitiateOnlinePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(5000)})
	require.NoError(t, err)

	_, err = f.engine.HandleGatewayCallback(ctx, paid("gw-1", true, 1))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.HandleGatewayCallback(ctx, gateway.Callback{Reference: "gw-1", Succeeded: true, Amount: money.New(5000, "VND")})
	assert.ErrorIs(t, err, ErrValidation)

	p, err := f.engine.GetPayment(ctx, "a", online.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, p.State)
	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, f.balances(t))

	p, err = f.engine.HandleGatewayCallback(ctx, paid("gw-1", true, 5000))
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, p.State)
}

func TestOnlinePaymentFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("gateway error records nothing", func(t *testing.T) {
		gw := new(mockGateway)
		gw.On("InitiateTransfer", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
		f := newFixture(t, WithGateway(gw, ""))

		_, err := f.engine.InitiateOnlinePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(5000)})
		assert.ErrorIs(t, err, ErrUnavailable)

		payments, err := f.engine.ListPayments(ctx, "a", f.groupID, "")
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("no gateway configured", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.InitiateOnlinePayment(ctx, "b", PaymentInput{GroupID: f.groupID, PayerID: "b", PayeeID: "a", Amount: usd(5000)})
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("failed transfer is rejected", func(t *testing.T) {
		gw := new(mockGateway)
		gw.On("InitiateTransfer", mock.Anything, mock.Anything).Return(&gateway.TransferResult{Reference: "gw-2"}, nil).Once()
		f := newFixture(t, WithGateway(gw, ""))

		_, err := f.engine.InitiateOnlinePayment(ctx, "c", PaymentInput{GroupID: f.groupID, PayerID: "c", PayeeID: "a", Amount: usd(100)})
		require.NoError(t, err)

		p, err := f.engine.HandleGatewayCallback(ctx, paid("gw-2", false, 100))
		require.NoError(t, err)
		assert.Equal(t, models.StateRejected, p.State)
		assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0}, f.balances(t))
	})
}

func TestRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.engine.CreateRecurring(ctx, "a", RecurringInput{
		Expense: ExpenseInput{
			GroupID:     f.groupID,
			PayerID:     "a",
			Total:       usd(90000),
			Description: "Rent",
			Split: calculator.PercentageSplit{Percentages: map[string]decimal.Decimal{
				"a": decimal.NewFromInt(50),
				"b": decimal.NewFromInt(25),
				"c": decimal.NewFromInt(25),
			}},
		},
		Frequency: models.FrequencyMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, f.now.Unix(), r.NextAt)

	created, err := f.engine.RunRecurring(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = f.engine.RunRecurring(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "an occurrence is materialized once")

	expenses, err := f.engine.ListExpenses(ctx, "a", f.groupID, models.StatePending)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, r.ID, expenses[0].RecurringID)
	assert.Equal(t, usd(22500), expenses[0].ShareOf("b"))
	assert.Equal(t, "a", expenses[0].CreatedBy)

	// January 31st plus one month normalizes to March 3rd.
	march := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	created, err = f.engine.RunRecurring(ctx, march.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	created, err = f.engine.RunRecurring(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	assert.ErrorIs(t, f.engine.SetRecurringPaused(ctx, "c", r.ID, true), ErrUnauthorized)
	require.NoError(t, f.engine.SetRecurringPaused(ctx, "a", r.ID, true))
	created, err = f.engine.RunRecurring(ctx, march.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestRecurringTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	internet := RecurringInput{
		Expense: ExpenseInput{
			GroupID:     f.groupID,
			PayerID:     "b",
			Total:       usd(6000),
			Description: "Internet",
			Split:       calculator.EqualSplit{},
		},
		Frequency: models.FrequencyWeekly,
		StartAt:   f.now.Add(48 * time.Hour).Unix(),
	}
	r, err := f.engine.CreateRecurring(ctx, "b", internet)
	require.NoError(t, err)

	t.Run("members list and read", func(t *testing.T) {
		list, err := f.engine.ListRecurring(ctx, "c", f.groupID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, r.ID, list[0].ID)

		got, err := f.engine.GetRecurring(ctx, "c", r.ID)
		require.NoError(t, err)
		assert.Equal(t, "Internet", got.Description)
		assert.Len(t, got.Shares, 3)

		_, err = f.engine.ListRecurring(ctx, "mallory", f.groupID)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.engine.GetRecurring(ctx, "mallory", r.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.engine.GetRecurring(ctx, "a", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update before the first run moves the schedule", func(t *testing.T) {
		edit := internet
		edit.Expense.Total = usd(9000)
		edit.Expense.Split = calculator.ExactSplit{Amounts: map[string]money.Money{"b": usd(4500), "c": usd(4500)}}
		edit.Frequency = models.FrequencyMonthly
		edit.StartAt = f.now.Unix()

		_, err := f.engine.UpdateRecurring(ctx, "c", r.ID, edit)
		assert.ErrorIs(t, err, ErrUnauthorized)

		bad := edit
		bad.Frequency = "hourly"
		_, err = f.engine.UpdateRecurring(ctx, "b", r.ID, bad)
		assert.ErrorIs(t, err, ErrValidation)

		updated, err := f.engine.UpdateRecurring(ctx, "b", r.ID, edit)
		require.NoError(t, err)
		assert.Equal(t, models.SplitExact, updated.Policy)
		assert.Equal(t, f.now.Unix(), updated.NextAt)

		created, err := f.engine.RunRecurring(ctx, f.now)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		expenses, err := f.engine.ListExpenses(ctx, "a", f.groupID, models.StatePending)
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, usd(9000), expenses[0].Total)
		assert.Equal(t, usd(0), expenses[0].ShareOf("a"))
	})

	t.Run("start is fixed once an occurrence exists", func(t *testing.T) {
		edit := internet
		edit.Expense.Description = "Fibre"
		edit.Frequency = models.FrequencyMonthly
		edit.StartAt = f.now.Add(time.Hour).Unix()
		_, err := f.engine.UpdateRecurring(ctx, "a", r.ID, edit)
		assert.ErrorIs(t, err, ErrState)

		edit.StartAt = 0
		updated, err := f.engine.UpdateRecurring(ctx, "a", r.ID, edit)
		require.NoError(t, err)
		assert.Equal(t, "Fibre", updated.Description)
		assert.Equal(t, f.now.AddDate(0, 1, 0).Unix(), updated.NextAt)

		// The expense already produced keeps its original description.
		expenses, err := f.engine.ListExpenses(ctx, "a", f.groupID, "")
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, "Internet", expenses[0].Description)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, f.engine.DeleteRecurring(ctx, "c", r.ID), ErrUnauthorized)
		assert.ErrorIs(t, f.engine.DeleteRecurring(ctx, "mallory", r.ID), ErrNotFound)
		require.NoError(t, f.engine.DeleteRecurring(ctx, "b", r.ID))

		_, err := f.engine.GetRecurring(ctx, "b", r.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		list, err := f.engine.ListRecurring(ctx, "b", f.groupID)
		require.NoError(t, err)
		assert.Empty(t, list)

		expenses, err := f.engine.ListExpenses(ctx, "a", f.groupID, "")
		require.NoError(t, err)
		assert.Len(t, expenses, 1)
	})
}

func TestConsistencyFault(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := new(mockLedger)
	engine := New(store, ledger)
	ctx := context.Background()

	group, _, err := engine.CreateGroup(ctx, "a", "Flat", "USD", []models.Member{{ID: "b"}})
	require.NoError(t, err)

	broken := &storage.ApprovedSet{Expenses: []models.Expense{{
		ID:      "e1",
		GroupID: group.ID,
		PayerID: "a",
		Total:   usd(300),
		State:   models.StateApproved,
		Shares:  []models.Share{{MemberID: "a", Amount: usd(100)}, {MemberID: "b", Amount: usd(100)}},
	}}}
	ledger.On("LoadApproved", mock.Anything, group.ID).Return(broken, nil).Twice()

	_, err = engine.GetBalances(ctx, "a", group.ID)
	require.ErrorIs(t, err, ErrConsistency)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "unable to compute balances", le.Message())
	assert.NotContains(t, err.Error(), "off by")

	_, err = engine.GetSettlementSuggestions(ctx, "b", group.ID)
	assert.ErrorIs(t, err, ErrConsistency)

	ledger.On("LoadApproved", mock.Anything, group.ID).Return(nil, errors.New("disk I/O error")).Once()
	_, err = engine.GetBalances(ctx, "a", group.ID)
	assert.ErrorIs(t, err, ErrUnavailable)
	ledger.AssertExpectations(t)
}

func TestGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, members, err := f.engine.GetGroup(ctx, "b", f.groupID)
	require.NoError(t, err)
	assert.Equal(t, "USD", group.Currency)
	require.Len(t, members, 3)
	assert.Equal(t, models.RoleAdmin, members[0].Role)

	_, err = f.engine.AddMember(ctx, "b", f.groupID, models.Member{ID: "d"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	m, err := f.engine.AddMember(ctx, "a", f.groupID, models.Member{ID: "d"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)

	_, err = f.engine.AddMember(ctx, "a", f.groupID, models.Member{ID: "d"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, map[string]int64{"a": 0, "b": 0, "c": 0, "d": 0}, f.balances(t))

	_, _, err = f.engine.CreateGroup(ctx, "a", "Trip", "XYZ", nil)
	assert.ErrorIs(t, err, ErrValidation)
}
