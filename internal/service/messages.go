package service

// Amount is a money value in display form, e.g. {"value": "12.50", "currency": "USD"}.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Empty struct{}

type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	CreatedAt int64  `json:"created_at"`
}

type CreateGroupRequest struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Members  []Member `json:"members"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GroupResponse struct {
	Group   Group    `json:"group"`
	Members []Member `json:"members"`
}

type AddMemberRequest struct {
	GroupID string `json:"group_id"`
	Member  Member `json:"member"`
}

type MemberResponse struct {
	Member Member `json:"member"`
}

// Split selects a split policy. Only the field matching Policy is read.
type Split struct {
	Policy       string            `json:"policy"`
	Participants []string          `json:"participants,omitempty"`
	Amounts      map[string]string `json:"amounts,omitempty"`
	Percentages  map[string]string `json:"percentages,omitempty"`
}

type Share struct {
	MemberID   string `json:"member_id"`
	Amount     Amount `json:"amount"`
	Percentage string `json:"percentage,omitempty"`
}

type Expense struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	PayerID     string  `json:"payer_id"`
	Total       Amount  `json:"total"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Policy      string  `json:"policy"`
	Shares      []Share `json:"shares"`
	State       string  `json:"state"`
	CreatedBy   string  `json:"created_by"`
	DecidedBy   string  `json:"decided_by,omitempty"`
	DecidedAt   int64   `json:"decided_at,omitempty"`
	OccurredAt  int64   `json:"occurred_at"`
	CreatedAt   int64   `json:"created_at"`
	RecurringID string  `json:"recurring_id,omitempty"`
}

type CreateExpenseRequest struct {
	GroupID     string `json:"group_id"`
	PayerID     string `json:"payer_id"`
	Total       Amount `json:"total"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	OccurredAt  int64  `json:"occurred_at,omitempty"`
	Split       Split  `json:"split"`
}

type UpdateExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
	CreateExpenseRequest
}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type ListRequest struct {
	GroupID string `json:"group_id"`
	State   string `json:"state,omitempty"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

// SetStateRequest approves or rejects an expense or payment.
type SetStateRequest struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type Payment struct {
	ID               string `json:"id"`
	GroupID          string `json:"group_id"`
	PayerID          string `json:"payer_id"`
	PayeeID          string `json:"payee_id"`
	Amount           Amount `json:"amount"`
	Method           string `json:"method"`
	Note             string `json:"note,omitempty"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
	State            string `json:"state"`
	CreatedBy        string `json:"created_by"`
	DecidedBy        string `json:"decided_by,omitempty"`
	DecidedAt        int64  `json:"decided_at,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

type CreatePaymentRequest struct {
	GroupID        string `json:"group_id"`
	PayerID        string `json:"payer_id"`
	PayeeID        string `json:"payee_id"`
	Amount         Amount `json:"amount"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type PaymentResponse struct {
	Payment     Payment `json:"payment"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
}

type ListPaymentsResponse struct {
	Payments []Payment `json:"payments"`
}

type GroupRequest struct {
	GroupID string `json:"group_id"`
}

type Balance struct {
	MemberID string `json:"member_id"`
	Amount   Amount `json:"amount"`
}

type BalancesResponse struct {
	GroupID  string    `json:"group_id"`
	Balances []Balance `json:"balances"`
}

type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount Amount `json:"amount"`
}

type SettlementResponse struct {
	GroupID   string     `json:"group_id"`
	Transfers []Transfer `json:"transfers"`
}

type MemberDebtsRequest struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id,omitempty"`
}

// Debt is signed from the member's point of view: a positive amount is owed to the
// member by Counterparty.
type Debt struct {
	Counterparty string `json:"counterparty"`
	Amount       Amount `json:"amount"`
	Direction    string `json:"direction"`
}

type MemberDebtsResponse struct {
	MemberID string `json:"member_id"`
	Debts    []Debt `json:"debts"`
}

type CreateRecurringRequest struct {
	Expense   CreateExpenseRequest `json:"expense"`
	Frequency string               `json:"frequency"`
	Interval  int                  `json:"interval,omitempty"`
	StartAt   int64                `json:"start_at,omitempty"`
	EndAt     int64                `json:"end_at,omitempty"`
}

type UpdateRecurringRequest struct {
	RecurringID string `json:"recurring_id"`
	CreateRecurringRequest
}

type Recurring struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	PayerID     string  `json:"payer_id"`
	Total       Amount  `json:"total"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Policy      string  `json:"policy"`
	Shares      []Share `json:"shares"`
	Frequency   string  `json:"frequency"`
	Interval    int     `json:"interval"`
	StartAt     int64   `json:"start_at"`
	EndAt       int64   `json:"end_at,omitempty"`
	NextAt      int64   `json:"next_at"`
	Paused      bool    `json:"paused"`
	CreatedBy   string  `json:"created_by"`
	LastRunAt   int64   `json:"last_run_at,omitempty"`
}

type RecurringResponse struct {
	Recurring Recurring `json:"recurring"`
}

type ListRecurringResponse struct {
	Recurring []Recurring `json:"recurring"`
}

type SetRecurringPausedRequest struct {
	ID     string `json:"id"`
	Paused bool   `json:"paused"`
}
