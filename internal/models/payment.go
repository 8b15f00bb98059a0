package models

import (
	"github.com/mmynk/splitledger/internal/money"
)

// PaymentMethod records how a payment was made.
type PaymentMethod string

const (
	// MethodManual is a payment made outside the system and reported by a member.
	MethodManual PaymentMethod = "manual"
	// MethodGateway is a payment initiated through the online payment gateway.
	MethodGateway PaymentMethod = "gateway"
)

// Payment represents a transfer between group members to clear debts.
// It reduces what the payer owes the payee only once approved.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// GroupID is the group this payment belongs to.
	GroupID string

	// PayerID is the member who paid (debtor settling up).
	PayerID string

	// PayeeID is the member who received the payment (creditor being paid).
	PayeeID string

	// Amount is the payment amount.
	Amount money.Money

	// Method is manual or gateway.
	Method PaymentMethod

	// Note is an optional description for the payment.
	Note string

	// GatewayReference is the external transaction reference for gateway payments.
	// Unique across all payments.
	GatewayReference string

	// CheckoutURL is where the payer completes a gateway payment.
	CheckoutURL string

	// IdempotencyKey is the client-supplied key used to deduplicate submissions. Optional.
	IdempotencyKey string

	// Fingerprint is a digest of the request fields bound to IdempotencyKey.
	Fingerprint string

	// State is the approval state.
	State State

	// CreatedBy is the member who recorded the payment.
	CreatedBy string

	// DecidedBy is the member (or system actor) that approved or rejected the payment.
	DecidedBy string

	// DecidedAt is the Unix timestamp of the approval or rejection.
	DecidedAt int64

	// CreatedAt is the Unix timestamp when the payment was recorded.
	CreatedAt int64
}
