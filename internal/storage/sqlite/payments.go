package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

const paymentColumns = `id, group_id, payer_id, payee_id, amount, currency, method, note, gateway_reference,
	checkout_url, idempotency_key, fingerprint, state, created_by, decided_by, decided_at, created_at`

// CreatePayment persists a new payment to the database.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	// Generate ID if not set
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt == 0 {
		payment.CreatedAt = time.Now().Unix()
	}
	if payment.State == "" {
		payment.State = models.StatePending
	}
	if payment.Method == "" {
		payment.Method = models.MethodManual
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)`,
		payment.ID, payment.GroupID, payment.PayerID, payment.PayeeID, payment.Amount.Amount,
		payment.Amount.Currency, string(payment.Method), nullString(payment.Note),
		nullString(payment.GatewayReference), nullString(payment.CheckoutURL), nullString(payment.IdempotencyKey),
		nullString(payment.Fingerprint), string(payment.State), payment.CreatedBy, payment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment %s: %w", payment.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

// GetPayment retrieves a payment by ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.getPaymentWhere(ctx, "id = ?", paymentID)
}

// GetPaymentByReference retrieves a payment by its gateway reference.
func (s *SQLiteStore) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return s.getPaymentWhere(ctx, "gateway_reference = ?", reference)
}

// GetPaymentByIdempotencyKey retrieves a group's payment by idempotency key.
func (s *SQLiteStore) GetPaymentByIdempotencyKey(ctx context.Context, groupID, key string) (*models.Payment, error) {
	return s.getPaymentWhere(ctx, "group_id = ? AND idempotency_key = ?", groupID, key)
}

func (s *SQLiteStore) getPaymentWhere(ctx context.Context, where string, args ...any) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE "+where, args...)
	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %v: %w", args, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPayments retrieves a group's payments, newest first.
func (s *SQLiteStore) ListPayments(ctx context.Context, groupID string, filter storage.EntryFilter) ([]models.Payment, error) {
	return listPayments(ctx, s.db, groupID, filter)
}

// DeletePayment removes a payment by ID.
func (s *SQLiteStore) DeletePayment(ctx context.Context, paymentID string, pendingOnly bool) error {
	return s.deleteRow(ctx, "payments", paymentID, pendingOnly)
}

// TransitionPayment moves a payment between states if it is currently in from.
func (s *SQLiteStore) TransitionPayment(ctx context.Context, paymentID string, from, to models.State, actor string, at int64) error {
	return s.transition(ctx, "payments", paymentID, string(from), string(to), actor, at)
}

func listPayments(ctx context.Context, q querier, groupID string, filter storage.EntryFilter) ([]models.Payment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+paymentColumns+` FROM payments
		 WHERE group_id = ? AND (? = '' OR state = ?)
		 ORDER BY created_at DESC, id`,
		groupID, string(filter.State), string(filter.State),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by group: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(sc scanner) (*models.Payment, error) {
	p := &models.Payment{}
	var amount int64
	var currency, method, state string
	var note, reference, checkoutURL, key, fingerprint, decidedBy sql.NullString
	var decidedAt sql.NullInt64

	err := sc.Scan(&p.ID, &p.GroupID, &p.PayerID, &p.PayeeID, &amount, &currency, &method, &note,
		&reference, &checkoutURL, &key, &fingerprint, &state, &p.CreatedBy, &decidedBy, &decidedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.Amount = money.New(amount, currency)
	p.Method = models.PaymentMethod(method)
	p.Note = note.String
	p.GatewayReference = reference.String
	p.CheckoutURL = checkoutURL.String
	p.IdempotencyKey = key.String
	p.Fingerprint = fingerprint.String
	p.State = models.State(state)
	p.DecidedBy = decidedBy.String
	p.DecidedAt = decidedAt.Int64
	return p, nil
}
