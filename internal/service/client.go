package service

import (
	"context"

	"connectrpc.com/connect"
)

// LedgerClient calls LedgerService over Connect using the JSON codec.
type LedgerClient struct {
	createGroup              *connect.Client[CreateGroupRequest, GroupResponse]
	getGroup                 *connect.Client[GetGroupRequest, GroupResponse]
	addMember                *connect.Client[AddMemberRequest, MemberResponse]
	createExpense            *connect.Client[CreateExpenseRequest, ExpenseResponse]
	updateExpense            *connect.Client[UpdateExpenseRequest, ExpenseResponse]
	deleteExpense            *connect.Client[IDRequest, Empty]
	getExpense               *connect.Client[IDRequest, ExpenseResponse]
	listExpenses             *connect.Client[ListRequest, ListExpensesResponse]
	setExpenseState          *connect.Client[SetStateRequest, ExpenseResponse]
	createPayment            *connect.Client[CreatePaymentRequest, PaymentResponse]
	initiateOnlinePayment    *connect.Client[CreatePaymentRequest, PaymentResponse]
	setPaymentState          *connect.Client[SetStateRequest, PaymentResponse]
	deletePayment            *connect.Client[IDRequest, Empty]
	listPayments             *connect.Client[ListRequest, ListPaymentsResponse]
	getBalances              *connect.Client[GroupRequest, BalancesResponse]
	getSettlementSuggestions *connect.Client[GroupRequest, SettlementResponse]
	getMemberDebts           *connect.Client[MemberDebtsRequest, MemberDebtsResponse]
	createRecurring          *connect.Client[CreateRecurringRequest, RecurringResponse]
	setRecurringPaused       *connect.Client[SetRecurringPausedRequest, Empty]
	getRecurring             *connect.Client[IDRequest, RecurringResponse]
	listRecurring            *connect.Client[GroupRequest, ListRecurringResponse]
	updateRecurring          *connect.Client[UpdateRecurringRequest, RecurringResponse]
	deleteRecurring          *connect.Client[IDRequest, Empty]
}

// NewLedgerClient constructs a client for the LedgerService at baseURL.
func NewLedgerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerClient {
	opts = append([]connect.ClientOption{CodecOption()}, opts...)
	return &LedgerClient{
		createGroup:              connect.NewClient[CreateGroupRequest, GroupResponse](httpClient, baseURL+CreateGroupProcedure, opts...),
		getGroup:                 connect.NewClient[GetGroupRequest, GroupResponse](httpClient, baseURL+GetGroupProcedure, opts...),
		addMember:                connect.NewClient[AddMemberRequest, MemberResponse](httpClient, baseURL+AddMemberProcedure, opts...),
		createExpense:            connect.NewClient[CreateExpenseRequest, ExpenseResponse](httpClient, baseURL+CreateExpenseProcedure, opts...),
		updateExpense:            connect.NewClient[UpdateExpenseRequest, ExpenseResponse](httpClient, baseURL+UpdateExpenseProcedure, opts...),
		deleteExpense:            connect.NewClient[IDRequest, Empty](httpClient, baseURL+DeleteExpenseProcedure, opts...),
		getExpense:               connect.NewClient[IDRequest, ExpenseResponse](httpClient, baseURL+GetExpenseProcedure, opts...),
		listExpenses:             connect.NewClient[ListRequest, ListExpensesResponse](httpClient, baseURL+ListExpensesProcedure, opts...),
		setExpenseState:          connect.NewClient[SetStateRequest, ExpenseResponse](httpClient, baseURL+SetExpenseStateProcedure, opts...),
		createPayment:            connect.NewClient[CreatePaymentRequest, PaymentResponse](httpClient, baseURL+CreatePaymentProcedure, opts...),
		initiateOnlinePayment:    connect.NewClient[CreatePaymentRequest, PaymentResponse](httpClient, baseURL+InitiateOnlinePaymentProcedure, opts...),
		setPaymentState:          connect.NewClient[SetStateRequest, PaymentResponse](httpClient, baseURL+SetPaymentStateProcedure, opts...),
		deletePayment:            connect.NewClient[IDRequest, Empty](httpClient, baseURL+DeletePaymentProcedure, opts...),
		listPayments:             connect.NewClient[ListRequest, ListPaymentsResponse](httpClient, baseURL+ListPaymentsProcedure, opts...),
		getBalances:              connect.NewClient[GroupRequest, BalancesResponse](httpClient, baseURL+GetBalancesProcedure, opts...),
		getSettlementSuggestions: connect.NewClient[GroupRequest, SettlementResponse](httpClient, baseURL+GetSettlementSuggestionsProcedure, opts...),
		getMemberDebts:           connect.NewClient[MemberDebtsRequest, MemberDebtsResponse](httpClient, baseURL+GetMemberDebtsProcedure, opts...),
		createRecurring:          connect.NewClient[CreateRecurringRequest, RecurringResponse](httpClient, baseURL+CreateRecurringProcedure, opts...),
		setRecurringPaused:       connect.NewClient[SetRecurringPausedRequest, Empty](httpClient, baseURL+SetRecurringPausedProcedure, opts...),
		getRecurring:             connect.NewClient[IDRequest, RecurringResponse](httpClient, baseURL+GetRecurringProcedure, opts...),
		listRecurring:            connect.NewClient[GroupRequest, ListRecurringResponse](httpClient, baseURL+ListRecurringProcedure, opts...),
		updateRecurring:          connect.NewClient[UpdateRecurringRequest, RecurringResponse](httpClient, baseURL+UpdateRecurringProcedure, opts...),
		deleteRecurring:          connect.NewClient[IDRequest, Empty](httpClient, baseURL+DeleteRecurringProcedure, opts...),
	}
}

// BearerToken returns a client interceptor that attaches token to every request.
func BearerToken(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func (c *LedgerClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *LedgerClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *LedgerClient) AddMember(ctx context.Context, req *connect.Request[AddMemberRequest]) (*connect.Response[MemberResponse], error) {
	return c.addMember.CallUnary(ctx, req)
}

func (c *LedgerClient) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.createExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.updateExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) DeleteExpense(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) GetExpense(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.getExpense.CallUnary(ctx, req)
}

func (c *LedgerClient) ListExpenses(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListExpensesResponse], error) {
	return c.listExpenses.CallUnary(ctx, req)
}

func (c *LedgerClient) SetExpenseState(ctx context.Context, req *connect.Request[SetStateRequest]) (*connect.Response[ExpenseResponse], error) {
	return c.setExpenseState.CallUnary(ctx, req)
}

func (c *LedgerClient) CreatePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	return c.createPayment.CallUnary(ctx, req)
}

func (c *LedgerClient) InitiateOnlinePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	return c.initiateOnlinePayment.CallUnary(ctx, req)
}

func (c *LedgerClient) SetPaymentState(ctx context.Context, req *connect.Request[SetStateRequest]) (*connect.Response[PaymentResponse], error) {
	return c.setPaymentState.CallUnary(ctx, req)
}

func (c *LedgerClient) DeletePayment(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	return c.deletePayment.CallUnary(ctx, req)
}

func (c *LedgerClient) ListPayments(ctx context.Context, req *connect.Request[ListRequest]) (*connect.Response[ListPaymentsResponse], error) {
	return c.listPayments.CallUnary(ctx, req)
}

func (c *LedgerClient) GetBalances(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[BalancesResponse], error) {
	return c.getBalances.CallUnary(ctx, req)
}

func (c *LedgerClient) GetSettlementSuggestions(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[SettlementResponse], error) {
	return c.getSettlementSuggestions.CallUnary(ctx, req)
}

func (c *LedgerClient) GetMemberDebts(ctx context.Context, req *connect.Request[MemberDebtsRequest]) (*connect.Response[MemberDebtsResponse], error) {
	return c.getMemberDebts.CallUnary(ctx, req)
}

func (c *LedgerClient) CreateRecurring(ctx context.Context, req *connect.Request[CreateRecurringRequest]) (*connect.Response[RecurringResponse], error) {
	return c.createRecurring.CallUnary(ctx, req)
}

func (c *LedgerClient) SetRecurringPaused(ctx context.Context, req *connect.Request[SetRecurringPausedRequest]) (*connect.Response[Empty], error) {
	return c.setRecurringPaused.CallUnary(ctx, req)
}

func (c *LedgerClient) GetRecurring(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[RecurringResponse], error) {
	return c.getRecurring.CallUnary(ctx, req)
}

func (c *LedgerClient) ListRecurring(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[ListRecurringResponse], error) {
	return c.listRecurring.CallUnary(ctx, req)
}

func (c *LedgerClient) UpdateRecurring(ctx context.Context, req *connect.Request[UpdateRecurringRequest]) (*connect.Response[RecurringResponse], error) {
	return c.updateRecurring.CallUnary(ctx, req)
}

func (c *LedgerClient) DeleteRecurring(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[Empty], error) {
	return c.deleteRecurring.CallUnary(ctx, req)
}
