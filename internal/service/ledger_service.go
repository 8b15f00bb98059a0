// Package service exposes the ledger engine over Connect RPC.
package service

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
)

// LedgerServiceName is the fully-qualified service name.
const LedgerServiceName = "splitledger.v1.LedgerService"

// Procedure paths served by LedgerService.
const (
	CreateGroupProcedure              = "/" + LedgerServiceName + "/CreateGroup"
	GetGroupProcedure                 = "/" + LedgerServiceName + "/GetGroup"
	AddMemberProcedure                = "/" + LedgerServiceName + "/AddMember"
	CreateExpenseProcedure            = "/" + LedgerServiceName + "/CreateExpense"
	UpdateExpenseProcedure            = "/" + LedgerServiceName + "/UpdateExpense"
	DeleteExpenseProcedure            = "/" + LedgerServiceName + "/DeleteExpense"
	GetExpenseProcedure               = "/" + LedgerServiceName + "/GetExpense"
	ListExpensesProcedure             = "/" + LedgerServiceName + "/ListExpenses"
	SetExpenseStateProcedure          = "/" + LedgerServiceName + "/SetExpenseState"
	CreatePaymentProcedure            = "/" + LedgerServiceName + "/CreatePayment"
	InitiateOnlinePaymentProcedure    = "/" + LedgerServiceName + "/InitiateOnlinePayment"
	SetPaymentStateProcedure          = "/" + LedgerServiceName + "/SetPaymentState"
	DeletePaymentProcedure            = "/" + LedgerServiceName + "/DeletePayment"
	ListPaymentsProcedure             = "/" + LedgerServiceName + "/ListPayments"
	GetBalancesProcedure              = "/" + LedgerServiceName + "/GetBalances"
	GetSettlementSuggestionsProcedure = "/" + LedgerServiceName + "/GetSettlementSuggestions"
	GetMemberDebtsProcedure           = "/" + LedgerServiceName + "/GetMemberDebts"
	CreateRecurringProcedure          = "/" + LedgerServiceName + "/CreateRecurring"
	SetRecurringPausedProcedure       = "/" + LedgerServiceName + "/SetRecurringPaused"
	GetRecurringProcedure             = "/" + LedgerServiceName + "/GetRecurring"
	ListRecurringProcedure            = "/" + LedgerServiceName + "/ListRecurring"
	UpdateRecurringProcedure          = "/" + LedgerServiceName + "/UpdateRecurring"
	DeleteRecurringProcedure          = "/" + LedgerServiceName + "/DeleteRecurring"
)

// LedgerService implements the LedgerService RPCs on top of a ledger.Engine.
type LedgerService struct {
	engine *ledger.Engine
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(engine *ledger.Engine) *LedgerService {
	return &LedgerService{engine: engine}
}

// NewLedgerServiceHandler builds an HTTP handler serving every LedgerService
// procedure. It returns the path prefix to mount it on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{CodecOption()}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateGroupProcedure, connect.NewUnaryHandler(CreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(GetGroupProcedure, connect.NewUnaryHandler(GetGroupProcedure, svc.GetGroup, opts...))
	mux.Handle(AddMemberProcedure, connect.NewUnaryHandler(AddMemberProcedure, svc.AddMember, opts...))
	mux.Handle(CreateExpenseProcedure, connect.NewUnaryHandler(CreateExpenseProcedure, svc.CreateExpense, opts...))
	mux.Handle(UpdateExpenseProcedure, connect.NewUnaryHandler(UpdateExpenseProcedure, svc.UpdateExpense, opts...))
	mux.Handle(DeleteExpenseProcedure, connect.NewUnaryHandler(DeleteExpenseProcedure, svc.DeleteExpense, opts...))
	mux.Handle(GetExpenseProcedure, connect.NewUnaryHandler(GetExpenseProcedure, svc.GetExpense, opts...))
	mux.Handle(ListExpensesProcedure, connect.NewUnaryHandler(ListExpensesProcedure, svc.ListExpenses, opts...))
	mux.Handle(SetExpenseStateProcedure, connect.NewUnaryHandler(SetExpenseStateProcedure, svc.SetExpenseState, opts...))
	mux.Handle(CreatePaymentProcedure, connect.NewUnaryHandler(CreatePaymentProcedure, svc.CreatePayment, opts...))
	mux.Handle(InitiateOnlinePaymentProcedure, connect.NewUnaryHandler(InitiateOnlinePaymentProcedure, svc.InitiateOnlinePayment, opts...))
	mux.Handle(SetPaymentStateProcedure, connect.NewUnaryHandler(SetPaymentStateProcedure, svc.SetPaymentState, opts...))
	mux.Handle(DeletePaymentProcedure, connect.NewUnaryHandler(DeletePaymentProcedure, svc.DeletePayment, opts...))
	mux.Handle(ListPaymentsProcedure, connect.NewUnaryHandler(ListPaymentsProcedure, svc.ListPayments, opts...))
	mux.Handle(GetBalancesProcedure, connect.NewUnaryHandler(GetBalancesProcedure, svc.GetBalances, opts...))
	mux.Handle(GetSettlementSuggestionsProcedure, connect.NewUnaryHandler(GetSettlementSuggestionsProcedure, svc.GetSettlementSuggestions, opts...))
	mux.Handle(GetMemberDebtsProcedure, connect.NewUnaryHandler(GetMemberDebtsProcedure, svc.GetMemberDebts, opts...))
	mux.Handle(CreateRecurringProcedure, connect.NewUnaryHandler(CreateRecurringProcedure, svc.CreateRecurring, opts...))
	mux.Handle(SetRecurringPausedProcedure, connect.NewUnaryHandler(SetRecurringPausedProcedure, svc.SetRecurringPaused, opts...))
	mux.Handle(GetRecurringProcedure, connect.NewUnaryHandler(GetRecurringProcedure, svc.GetRecurring, opts...))
	mux.Handle(ListRecurringProcedure, connect.NewUnaryHandler(ListRecurringProcedure, svc.ListRecurring, opts...))
	mux.Handle(UpdateRecurringProcedure, connect.NewUnaryHandler(UpdateRecurringProcedure, svc.UpdateRecurring, opts...))
	mux.Handle(DeleteRecurringProcedure, connect.NewUnaryHandler(DeleteRecurringProcedure, svc.DeleteRecurring, opts...))
	return "/" + LedgerServiceName + "/", mux
}

var errNoActor = errors.New("no authenticated member")

func actor(ctx context.Context) (string, error) {
	id := middleware.GetMemberID(ctx)
	if id == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errNoActor)
	}
	return id, nil
}

// CreateGroup creates a group administered by the caller.
func (s *LedgerService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(req.Msg.Members))
	for _, m := range req.Msg.Members {
		members = append(members, fromMember(m))
	}

	group, all, err := s.engine.CreateGroup(ctx, who, req.Msg.Name, req.Msg.Currency, members)
	if err != nil {
		return nil, toConnectError(CreateGroupProcedure, err)
	}
	return connect.NewResponse(&GroupResponse{Group: toGroup(group), Members: toMembers(all)}), nil
}

// GetGroup returns a group and its members.
func (s *LedgerService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	group, members, err := s.engine.GetGroup(ctx, who, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(GetGroupProcedure, err)
	}
	return connect.NewResponse(&GroupResponse{Group: toGroup(group), Members: toMembers(members)}), nil
}

// AddMember adds a member to a group.
func (s *LedgerService) AddMember(ctx context.Context, req *connect.Request[AddMemberRequest]) (*connect.Response[MemberResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.engine.AddMember(ctx, who, req.Msg.GroupID, fromMember(req.Msg.Member))
	if err != nil {
		return nil, toConnectError(AddMemberProcedure, err)
	}
	return connect.NewResponse(&MemberResponse{Member: toMember(*m)}), nil
}

// CreateExpense records a pending expense.
func (s *LedgerService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromExpenseRequest(req.Msg)
	if err != nil {
		return nil, invalidArgument(err)
	}
	expense, err := s.engine.CreateExpense(ctx, who, in)
	if err != nil {
		return nil, toConnectError(CreateExpenseProcedure, err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// UpdateExpense edits a pending expense.
func (s *LedgerService) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromExpenseRequest(&req.Msg.CreateExpenseRequest)
	if err != nil {
		return nil, invalidArgument(err)
	}
	expense, err := s.engine.UpdateExpense(ctx, who, req.Msg.ExpenseID, in)
	if err != nil {
		return nil, toConnectError(UpdateExpenseProcedure, err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// DeleteExpense removes an expense.
func (s *LedgerService) DeleteExpense(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeleteExpense(ctx, who, req.Msg.ID); err != nil {
		return nil, toConnectError(DeleteExpenseProcedure, err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetExpense returns one expense.
func (s *LedgerService) GetExpense(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[ExpenseResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	expense, err := s.engine.GetExpense(ctx, who, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(GetExpenseProcedure, err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// ListExpenses returns a group's expenses.
func (s *LedgerService) ListExpenses(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListExpensesResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	state, err := parseState(req.Msg.State)
	if err != nil {
		return nil, invalidArgument(err)
	}
	expenses, err := s.engine.ListExpenses(ctx, who, req.Msg.GroupID, state)
	if err != nil {
		return nil, toConnectError(ListExpensesProcedure, err)
	}
	out := make([]Expense, len(expenses))
	for i := range expenses {
		out[i] = toExpense(&expenses[i])
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: out}), nil
}

// SetExpenseState approves or rejects a pending expense.
func (s *LedgerService) SetExpenseState(ctx context.Context, req *connect.Request[SetStateRequest]) (*connect.Response[ExpenseResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	state, err := parseState(req.Msg.State)
	if err != nil {
		return nil, invalidArgument(err)
	}
	expense, err := s.engine.SetExpenseState(ctx, who, req.Msg.ID, state)
	if err != nil {
		return nil, toConnectError(SetExpenseStateProcedure, err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// CreatePayment records a pending manual payment.
func (s *LedgerService) CreatePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromPaymentRequest(req.Msg)
	if err != nil {
		return nil, invalidArgument(err)
	}
	// Header wins over body so proxies can set it.
	if key := req.Header().Get("Idempotency-Key"); key != "" {
		in.IdempotencyKey = key
	}
	p, err := s.engine.CreatePayment(ctx, who, in)
	if err != nil {
		return nil, toConnectError(CreatePaymentProcedure, err)
	}
	return connect.NewResponse(&PaymentResponse{Payment: toPayment(p)}), nil
}

// InitiateOnlinePayment starts a gateway payment and returns its checkout URL.
func (s *LedgerService) InitiateOnlinePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromPaymentRequest(req.Msg)
	if err != nil {
		return nil, invalidArgument(err)
	}
	if key := req.Header().Get("Idempotency-Key"); key != "" {
		in.IdempotencyKey = key
	}
	online, err := s.engine.InitiateOnlinePayment(ctx, who, in)
	if err != nil {
		return nil, toConnectError(InitiateOnlinePaymentProcedure, err)
	}
	return connect.NewResponse(&PaymentResponse{Payment: toPayment(online.Payment), CheckoutURL: online.CheckoutURL}), nil
}

// SetPaymentState approves or rejects a pending payment.
func (s *LedgerService) SetPaymentState(ctx context.Context, req *connect.Request[SetStateRequest]) (*connect.Response[PaymentResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	state, err := parseState(req.Msg.State)
	if err != nil {
		return nil, invalidArgument(err)
	}
	p, err := s.engine.SetPaymentState(ctx, who, req.Msg.ID, state)
	if err != nil {
		return nil, toConnectError(SetPaymentStateProcedure, err)
	}
	return connect.NewResponse(&PaymentResponse{Payment: toPayment(p)}), nil
}

// DeletePayment removes a pending payment.
func (s *LedgerService) DeletePayment(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeletePayment(ctx, who, req.Msg.ID); err != nil {
		return nil, toConnectError(DeletePaymentProcedure, err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ListPayments returns a group's payments.
func (s *LedgerService) ListPayments(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListPaymentsResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	state, err := parseState(req.Msg.State)
	if err != nil {
		return nil, invalidArgument(err)
	}
	payments, err := s.engine.ListPayments(ctx, who, req.Msg.GroupID, state)
	if err != nil {
		return nil, toConnectError(ListPaymentsProcedure, err)
	}
	out := make([]Payment, len(payments))
	for i := range payments {
		out[i] = toPayment(&payments[i])
	}
	return connect.NewResponse(&ListPaymentsResponse{Payments: out}), nil
}

// GetBalances returns every member's net balance, ordered by member ID.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[BalancesResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.GetBalances(ctx, who, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(GetBalancesProcedure, err)
	}
	ids := snap.Members()
	sort.Strings(ids)
	balances := make([]Balance, len(ids))
	for i, id := range ids {
		balances[i] = Balance{MemberID: id, Amount: toAmount(snap.Get(id))}
	}
	return connect.NewResponse(&BalancesResponse{GroupID: req.Msg.GroupID, Balances: balances}), nil
}

// GetSettlementSuggestions returns the transfers that settle the group.
func (s *LedgerService) GetSettlementSuggestions(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[SettlementResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	transfers, err := s.engine.GetSettlementSuggestions(ctx, who, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(GetSettlementSuggestionsProcedure, err)
	}
	out := make([]Transfer, len(transfers))
	for i, t := range transfers {
		out[i] = Transfer{From: t.From, To: t.To, Amount: toAmount(t.Amount)}
	}
	return connect.NewResponse(&SettlementResponse{GroupID: req.Msg.GroupID, Transfers: out}), nil
}

// GetMemberDebts returns the suggested transfers involving one member.
// The member defaults to the caller.
func (s *LedgerService) GetMemberDebts(ctx context.Context, req *connect.Request[MemberDebtsRequest]) (*connect.Response[MemberDebtsResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	memberID := req.Msg.MemberID
	if memberID == "" {
		memberID = who
	}
	debts, err := s.engine.GetMemberDebts(ctx, who, req.Msg.GroupID, memberID)
	if err != nil {
		return nil, toConnectError(GetMemberDebtsProcedure, err)
	}
	return connect.NewResponse(&MemberDebtsResponse{MemberID: memberID, Debts: toDebts(debts)}), nil
}

// CreateRecurring stores a recurring expense template.
func (s *LedgerService) CreateRecurring(ctx context.Context, req *connect.Request[CreateRecurringRequest]) (*connect.Response[RecurringResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromRecurringRequest(req.Msg)
	if err != nil {
		return nil, invalidArgument(err)
	}
	r, err := s.engine.CreateRecurring(ctx, who, in)
	if err != nil {
		return nil, toConnectError(CreateRecurringProcedure, err)
	}
	return connect.NewResponse(&RecurringResponse{Recurring: toRecurring(r)}), nil
}

// SetRecurringPaused pauses or resumes a template.
func (s *LedgerService) SetRecurringPaused(ctx context.Context, req *connect.Request[SetRecurringPausedRequest]) (*connect.Response[Empty], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SetRecurringPaused(ctx, who, req.Msg.ID, req.Msg.Paused); err != nil {
		return nil, toConnectError(SetRecurringPausedProcedure, err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetRecurring returns one template.
func (s *LedgerService) GetRecurring(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[RecurringResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.engine.GetRecurring(ctx, who, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(GetRecurringProcedure, err)
	}
	return connect.NewResponse(&RecurringResponse{Recurring: toRecurring(r)}), nil
}

// ListRecurring returns a group's templates, newest first.
func (s *LedgerService) ListRecurring(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[ListRecurringResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.engine.ListRecurring(ctx, who, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(ListRecurringProcedure, err)
	}
	out := make([]Recurring, len(list))
	for i := range list {
		out[i] = toRecurring(&list[i])
	}
	return connect.NewResponse(&ListRecurringResponse{Recurring: out}), nil
}

// UpdateRecurring replaces a template's expense and schedule.
func (s *LedgerService) UpdateRecurring(ctx context.Context, req *connect.Request[UpdateRecurringRequest]) (*connect.Response[RecurringResponse], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	in, err := fromRecurringRequest(&req.Msg.CreateRecurringRequest)
	if err != nil {
		return nil, invalidArgument(err)
	}
	r, err := s.engine.UpdateRecurring(ctx, who, req.Msg.RecurringID, in)
	if err != nil {
		return nil, toConnectError(UpdateRecurringProcedure, err)
	}
	return connect.NewResponse(&RecurringResponse{Recurring: toRecurring(r)}), nil
}

// DeleteRecurring removes a template. Expenses it produced are kept.
func (s *LedgerService) DeleteRecurring(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeleteRecurring(ctx, who, req.Msg.ID); err != nil {
		return nil, toConnectError(DeleteRecurringProcedure, err)
	}
	return connect.NewResponse(&Empty{}), nil
}
