package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

func toAmount(m money.Money) Amount {
	exp, err := money.Exponent(m.Currency)
	if err != nil {
		return Amount{Value: fmt.Sprint(m.Amount), Currency: m.Currency}
	}
	return Amount{Value: m.Decimal().StringFixed(exp), Currency: m.Currency}
}

func fromAmount(field string, a Amount) (money.Money, error) {
	if a.Value == "" {
		return money.Money{}, fmt.Errorf("%s is required", field)
	}
	m, err := money.Parse(a.Value, a.Currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return m, nil
}

func fromSplit(s Split, currency string) (calculator.SplitInput, error) {
	switch models.SplitPolicy(strings.ToLower(s.Policy)) {
	case models.SplitEqual, "":
		return calculator.EqualSplit{Participants: s.Participants}, nil
	case models.SplitExact:
		amounts := make(map[string]money.Money, len(s.Amounts))
		for id, v := range s.Amounts {
			m, err := money.Parse(v, currency)
			if err != nil {
				return nil, fmt.Errorf("share for %s: %w", id, err)
			}
			amounts[id] = m
		}
		return calculator.ExactSplit{Amounts: amounts}, nil
	case models.SplitPercentage:
		pcts := make(map[string]decimal.Decimal, len(s.Percentages))
		for id, v := range s.Percentages {
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("percentage for %s: %w", id, err)
			}
			pcts[id] = d
		}
		return calculator.PercentageSplit{Percentages: pcts}, nil
	}
	return nil, fmt.Errorf("%w: %q", calculator.ErrUnknownPolicy, s.Policy)
}

func fromExpenseRequest(req *CreateExpenseRequest) (ledger.ExpenseInput, error) {
	total, err := fromAmount("total", req.Total)
	if err != nil {
		return ledger.ExpenseInput{}, err
	}
	split, err := fromSplit(req.Split, total.Currency)
	if err != nil {
		return ledger.ExpenseInput{}, err
	}
	return ledger.ExpenseInput{
		GroupID:     req.GroupID,
		PayerID:     req.PayerID,
		Total:       total,
		Description: req.Description,
		Category:    req.Category,
		OccurredAt:  req.OccurredAt,
		Split:       split,
	}, nil
}

func fromPaymentRequest(req *CreatePaymentRequest) (ledger.PaymentInput, error) {
	amount, err := fromAmount("amount", req.Amount)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	return ledger.PaymentInput{
		GroupID:        req.GroupID,
		PayerID:        req.PayerID,
		PayeeID:        req.PayeeID,
		Amount:         amount,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

func parseState(s string) (models.State, error) {
	if s == "" {
		return "", nil
	}
	return models.ParseState(strings.ToLower(s))
}

func toGroup(g *models.Group) Group {
	return Group{ID: g.ID, Name: g.Name, Currency: g.Currency, CreatedAt: g.CreatedAt}
}

func toMember(m models.Member) Member {
	return Member{ID: m.ID, Name: m.Name, Email: m.Email, Role: string(m.Role)}
}

func toMembers(members []models.Member) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = toMember(m)
	}
	return out
}

func fromMember(m Member) models.Member {
	return models.Member{ID: m.ID, Name: m.Name, Email: m.Email, Role: models.Role(strings.ToLower(m.Role))}
}

func toShares(shares []models.Share) []Share {
	out := make([]Share, len(shares))
	for i, s := range shares {
		out[i] = Share{MemberID: s.MemberID, Amount: toAmount(s.Amount), Percentage: s.Percentage}
	}
	return out
}

func toExpense(e *models.Expense) Expense {
	return Expense{
		ID:          e.ID,
		GroupID:     e.GroupID,
		PayerID:     e.PayerID,
		Total:       toAmount(e.Total),
		Description: e.Description,
		Category:    e.Category,
		Policy:      string(e.Policy),
		Shares:      toShares(e.Shares),
		State:       string(e.State),
		CreatedBy:   e.CreatedBy,
		DecidedBy:   e.DecidedBy,
		DecidedAt:   e.DecidedAt,
		OccurredAt:  e.OccurredAt,
		CreatedAt:   e.CreatedAt,
		RecurringID: e.RecurringID,
	}
}

func toPayment(p *models.Payment) Payment {
	return Payment{
		ID:               p.ID,
		GroupID:          p.GroupID,
		PayerID:          p.PayerID,
		PayeeID:          p.PayeeID,
		Amount:           toAmount(p.Amount),
		Method:           string(p.Method),
		Note:             p.Note,
		GatewayReference: p.GatewayReference,
		IdempotencyKey:   p.IdempotencyKey,
		State:            string(p.State),
		CreatedBy:        p.CreatedBy,
		DecidedBy:        p.DecidedBy,
		DecidedAt:        p.DecidedAt,
		CreatedAt:        p.CreatedAt,
	}
}

func toRecurring(r *models.RecurringExpense) Recurring {
	return Recurring{
		ID:          r.ID,
		GroupID:     r.GroupID,
		PayerID:     r.PayerID,
		Total:       toAmount(r.Total),
		Description: r.Description,
		Category:    r.Category,
		Policy:      string(r.Policy),
		Shares:      toShares(r.Shares),
		Frequency:   string(r.Frequency),
		Interval:    r.Interval,
		StartAt:     r.StartAt,
		EndAt:       r.EndAt,
		NextAt:      r.NextAt,
		Paused:      r.Paused,
		CreatedBy:   r.CreatedBy,
		LastRunAt:   r.LastRunAt,
	}
}

func fromRecurringRequest(req *CreateRecurringRequest) (ledger.RecurringInput, error) {
	in, err := fromExpenseRequest(&req.Expense)
	if err != nil {
		return ledger.RecurringInput{}, err
	}
	return ledger.RecurringInput{
		Expense:   in,
		Frequency: models.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		Interval:  req.Interval,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
	}, nil
}

func toDebts(debts []calculator.Debt) []Debt {
	out := make([]Debt, len(debts))
	for i, d := range debts {
		direction := "owes_you"
		if d.Amount.Sign() < 0 {
			direction = "you_owe"
		}
		out[i] = Debt{Counterparty: d.Counterparty, Amount: toAmount(d.Amount), Direction: direction}
	}
	return out
}
