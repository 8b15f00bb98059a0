package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mmynk/splitledger/internal/gateway"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

// PaymentInput describes a payment from one member to another.
type PaymentInput struct {
	GroupID string
	PayerID string
	PayeeID string
	Amount  money.Money
	Note    string

	// IdempotencyKey makes resubmission safe: a repeat with the same key and the
	// same fields returns the original payment.
	IdempotencyKey string
}

// OnlinePayment is a pending gateway payment and where to complete it.
type OnlinePayment struct {
	Payment     *models.Payment
	CheckoutURL string
}

// fingerprint digests the fields an idempotency key is bound to.
func (in PaymentInput) fingerprint() string {
	h, _ := blake2b.New256(nil)
	for _, s := range []string{in.GroupID, in.PayerID, in.PayeeID, in.Amount.Currency, strings.TrimSpace(in.Note)} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], uint64(in.Amount.Amount))
	h.Write(amt[:])
	return hex.EncodeToString(h.Sum(nil))
}

// buildPayment validates in against the group.
func (e *Engine) buildPayment(op, actor string, gc *groupContext, in PaymentInput) (*models.Payment, error) {
	if in.Amount.Currency != gc.group.Currency {
		return nil, invalidf(op, "payment currency %s does not match group currency %s", in.Amount.Currency, gc.group.Currency)
	}
	if !in.Amount.IsPositive() {
		return nil, invalidf(op, "amount must be positive, got %s", in.Amount)
	}
	if in.PayerID == in.PayeeID {
		return nil, invalidf(op, "payer and payee must be different members")
	}
	if _, ok := gc.member(in.PayerID); !ok {
		return nil, invalidf(op, "payer %s is not a group member", in.PayerID)
	}
	if _, ok := gc.member(in.PayeeID); !ok {
		return nil, invalidf(op, "payee %s is not a group member", in.PayeeID)
	}
	if actor != in.PayerID && !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only the payer or an admin can record this payment")
	}

	p := &models.Payment{
		GroupID:        gc.group.ID,
		PayerID:        in.PayerID,
		PayeeID:        in.PayeeID,
		Amount:         in.Amount,
		Note:           strings.TrimSpace(in.Note),
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		State:          models.StatePending,
		CreatedBy:      actor,
		CreatedAt:      e.now().Unix(),
	}
	if p.IdempotencyKey != "" {
		p.Fingerprint = in.fingerprint()
	}
	return p, nil
}

// lookupIdempotent returns the payment already recorded under p's idempotency
// key, or nil if the key is unused or absent.
func (e *Engine) lookupIdempotent(ctx context.Context, op string, p *models.Payment) (*models.Payment, error) {
	if p.IdempotencyKey == "" {
		return nil, nil
	}
	existing, err := e.ledger.GetPaymentByIdempotencyKey(ctx, p.GroupID, p.IdempotencyKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, unavailable(op, err)
	}
	return e.matchReplay(ctx, op, p, existing)
}

// replay resolves an idempotency key that is already taken.
func (e *Engine) replay(ctx context.Context, op string, p *models.Payment) (*models.Payment, error) {
	existing, err := e.ledger.GetPaymentByIdempotencyKey(ctx, p.GroupID, p.IdempotencyKey)
	if err != nil {
		return nil, fromStorage(op, err)
	}
	return e.matchReplay(ctx, op, p, existing)
}

func (e *Engine) matchReplay(ctx context.Context, op string, p, existing *models.Payment) (*models.Payment, error) {
	if existing.Fingerprint != p.Fingerprint || existing.Method != p.Method {
		return nil, invalidf(op, "idempotency key %q was already used for a different payment", p.IdempotencyKey)
	}
	slog.DebugContext(ctx, "Idempotent payment replay", "group_id", p.GroupID, "payment_id", existing.ID)
	return existing, nil
}

// transferReference names the provider transfer for p. Keyed payments get a
// reference derived from group and key, so racing retries collide at the
// provider as well as on insert.
func transferReference(p *models.Payment) string {
	if p.IdempotencyKey == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.GroupID+"\x00"+p.IdempotencyKey)).String()
}

// CreatePayment records a pending manual payment from payer to payee.
func (e *Engine) CreatePayment(ctx context.Context, actor string, in PaymentInput) (*models.Payment, error) {
	const op = "CreatePayment"

	gc, err := e.loadGroupAs(ctx, op, in.GroupID, actor)
	if err != nil {
		return nil, err
	}
	p, err := e.buildPayment(op, actor, gc, in)
	if err != nil {
		return nil, err
	}
	p.Method = models.MethodManual

	existing, err := e.lookupIdempotent(ctx, op, p)
	if err != nil || existing != nil {
		return existing, err
	}

	if err := e.ledger.CreatePayment(ctx, p); err != nil {
		// A concurrent submission with the same key won the insert.
		if errors.Is(err, storage.ErrDuplicate) && p.IdempotencyKey != "" {
			return e.replay(ctx, op, p)
		}
		return nil, fromStorage(op, err)
	}
	e.metrics.EntryCreated("payment")
	slog.InfoContext(ctx, "Payment created",
		"group_id", p.GroupID,
		"payment_id", p.ID,
		"payer_id", p.PayerID,
		"payee_id", p.PayeeID,
		"amount", p.Amount.String(),
	)
	return p, nil
}

// SetPaymentState approves or rejects a pending payment. The payee or a group admin
// may decide.
func (e *Engine) SetPaymentState(ctx context.Context, actor, paymentID string, to models.State) (*models.Payment, error) {
	const op = "SetPaymentState"

	if !to.Terminal() {
		return nil, invalidf(op, "target state must be approved or rejected, got %q", to)
	}
	p, gc, err := e.paymentAs(ctx, op, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if actor != p.PayeeID && !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only the payee or an admin can approve or reject this payment")
	}
	if !p.State.CanTransition(to) {
		return nil, stateErrorf(op, "payment is already %s", p.State)
	}

	if err := e.decidePayment(ctx, op, gc, p, actor, to); err != nil {
		return nil, err
	}
	return p, nil
}

// decidePayment runs the CAS transition and its side effects, updating p in place.
func (e *Engine) decidePayment(ctx context.Context, op string, gc *groupContext, p *models.Payment, actor string, to models.State) error {
	at := e.now().Unix()
	if err := e.ledger.TransitionPayment(ctx, p.ID, models.StatePending, to, actor, at); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return stateErrorf(op, "payment is no longer pending")
		}
		return fromStorage(op, err)
	}
	p.State = to
	p.DecidedBy = actor
	p.DecidedAt = at

	e.metrics.Transition("payment", string(to))
	slog.InfoContext(ctx, "Payment decided", "group_id", p.GroupID, "payment_id", p.ID, "state", to, "actor", actor)

	kind := notify.PaymentApproved
	if to == models.StateRejected {
		kind = notify.PaymentRejected
	}
	e.notify(ctx, notify.Event{
		Kind:       kind,
		Group:      *gc.group,
		Actor:      actor,
		Payment:    p,
		Recipients: gc.recipients(actor, p.PayerID, p.PayeeID),
	})
	return nil
}

// DeletePayment removes a pending payment. The payer or an admin may delete it.
func (e *Engine) DeletePayment(ctx context.Context, actor, paymentID string) error {
	const op = "DeletePayment"

	p, gc, err := e.paymentAs(ctx, op, actor, paymentID)
	if err != nil {
		return err
	}
	if actor != p.PayerID && actor != p.CreatedBy && !gc.isAdmin(actor) {
		return unauthorizedf(op, "only the payer or an admin can delete this payment")
	}
	if p.State != models.StatePending {
		return stateErrorf(op, "payment is %s, only pending payments can be deleted", p.State)
	}

	if err := e.ledger.DeletePayment(ctx, paymentID, true); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return stateErrorf(op, "payment was decided before it could be deleted")
		}
		return fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Payment deleted", "group_id", p.GroupID, "payment_id", paymentID, "actor", actor)
	return nil
}

// GetPayment returns one payment. The actor must be a member of its group.
func (e *Engine) GetPayment(ctx context.Context, actor, paymentID string) (*models.Payment, error) {
	const op = "GetPayment"

	p, _, err := e.paymentAs(ctx, op, actor, paymentID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// paymentAs loads a payment and its group for a member of that group.
func (e *Engine) paymentAs(ctx context.Context, op, actor, paymentID string) (*models.Payment, *groupContext, error) {
	p, err := e.ledger.GetPayment(ctx, paymentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, entryNotFound(op, "payment", paymentID)
	}
	if err != nil {
		return nil, nil, fromStorage(op, err)
	}
	gc, err := e.loadEntryGroup(ctx, op, "payment", paymentID, p.GroupID, actor)
	if err != nil {
		return nil, nil, err
	}
	return p, gc, nil
}

// ListPayments returns the group's payments, newest first, optionally by state.
func (e *Engine) ListPayments(ctx context.Context, actor, groupID string, state models.State) ([]models.Payment, error) {
	const op = "ListPayments"

	if state != "" {
		if _, err := models.ParseState(string(state)); err != nil {
			return nil, invalid(op, err)
		}
	}
	if _, err := e.loadGroupAs(ctx, op, groupID, actor); err != nil {
		return nil, err
	}
	payments, err := e.ledger.ListPayments(ctx, groupID, storage.EntryFilter{State: state})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return payments, nil
}

// InitiateOnlinePayment asks the gateway to move money from payer to payee and
// records the outcome as a pending gateway payment. The payment is decided later
// by HandleGatewayCallback or by the payee.
func (e *Engine) InitiateOnlinePayment(ctx context.Context, actor string, in PaymentInput) (*OnlinePayment, error) {
	const op = "InitiateOnlinePayment"

	if e.gateway == nil {
		return nil, unavailable(op, errors.New("payment gateway is not configured"))
	}
	gc, err := e.loadGroupAs(ctx, op, in.GroupID, actor)
	if err != nil {
		return nil, err
	}
	p, err := e.buildPayment(op, actor, gc, in)
	if err != nil {
		return nil, err
	}
	if actor != in.PayerID {
		return nil, unauthorizedf(op, "only the payer can start an online payment")
	}
	p.Method = models.MethodGateway

	existing, err := e.lookupIdempotent(ctx, op, p)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &OnlinePayment{Payment: existing, CheckoutURL: existing.CheckoutURL}, nil
	}

	res, err := e.gateway.InitiateTransfer(ctx, gateway.TransferRequest{
		Reference:   transferReference(p),
		GroupID:     p.GroupID,
		PayerID:     p.PayerID,
		PayeeID:     p.PayeeID,
		Amount:      p.Amount,
		Description: p.Note,
		ReturnURL:   e.returnURL,
	})
	if err != nil {
		slog.WarnContext(ctx, "Gateway transfer failed", "group_id", p.GroupID, "payer_id", p.PayerID, "error", err)
		return nil, unavailable(op, err)
	}
	p.GatewayReference = res.Reference
	p.CheckoutURL = res.CheckoutURL

	if err := e.ledger.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) && p.IdempotencyKey != "" {
			existing, rerr := e.replay(ctx, op, p)
			if rerr != nil {
				return nil, rerr
			}
			return &OnlinePayment{Payment: existing, CheckoutURL: existing.CheckoutURL}, nil
		}
		return nil, fromStorage(op, err)
	}
	e.metrics.EntryCreated("payment")
	slog.InfoContext(ctx, "Online payment initiated",
		"group_id", p.GroupID,
		"payment_id", p.ID,
		"reference", p.GatewayReference,
		"amount", p.Amount.String(),
	)
	return &OnlinePayment{Payment: p, CheckoutURL: res.CheckoutURL}, nil
}

// HandleGatewayCallback decides the gateway payment named by cb.Reference:
// approved on success, rejected on failure. The reported amount must match the
// recorded one. Redelivered callbacks with the same outcome return the payment
// unchanged.
func (e *Engine) HandleGatewayCallback(ctx context.Context, cb gateway.Callback) (*models.Payment, error) {
	const op = "HandleGatewayCallback"

	reference, succeeded := cb.Reference, cb.Succeeded
	if reference == "" {
		return nil, invalidf(op, "reference is required")
	}
	p, err := e.ledger.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, fromStorage(op, err)
	}
	if cb.Amount != p.Amount {
		slog.WarnContext(ctx, "Gateway amount mismatch",
			"payment_id", p.ID,
			"reference", reference,
			"expected", p.Amount.String(),
			"reported", cb.Amount.String(),
		)
		return nil, invalidf(op, "callback amount %s does not match payment amount %s", cb.Amount, p.Amount)
	}
	to := models.StateRejected
	if succeeded {
		to = models.StateApproved
	}

	if p.State == models.StatePending {
		gc, err := e.loadGroup(ctx, op, p.GroupID)
		if err != nil {
			return nil, err
		}
		err = e.decidePayment(ctx, op, gc, p, SystemActor, to)
		if err == nil {
			if succeeded {
				e.notify(ctx, notify.Event{
					Kind:       notify.PaymentReceived,
					Group:      *gc.group,
					Actor:      SystemActor,
					Payment:    p,
					Recipients: gc.recipients(SystemActor, p.PayeeID),
				})
			}
			return p, nil
		}
		if !errors.Is(err, ErrState) {
			return nil, err
		}
		// Lost the race; compare with whoever won.
		if p, err = e.ledger.GetPaymentByReference(ctx, reference); err != nil {
			return nil, fromStorage(op, err)
		}
	}

	if p.State != to {
		return nil, stateErrorf(op, "payment %s is already %s", p.ID, p.State)
	}
	slog.DebugContext(ctx, "Duplicate gateway callback", "payment_id", p.ID, "reference", reference)
	return p, nil
}
