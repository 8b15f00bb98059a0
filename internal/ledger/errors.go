package ledger

import (
	"errors"
	"fmt"

	"github.com/mmynk/splitledger/internal/storage"
)

// Error kinds. Match with errors.Is.
var (
	// ErrValidation is a malformed request: bad split, non-member, non-positive amount,
	// currency mismatch. Nothing was written.
	ErrValidation = errors.New("validation error")
	// ErrState is a transition on an entry that is not pending.
	ErrState = errors.New("state error")
	// ErrUnauthorized is an actor without the right to perform the operation.
	// It is also an ErrState.
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrState)
	// ErrNotFound is a missing group, member or entry.
	ErrNotFound = errors.New("not found")
	// ErrConsistency is a ledger whose balances do not add up. Not user recoverable.
	ErrConsistency = errors.New("consistency fault")
	// ErrUnavailable is a failing collaborator (storage, registry, gateway). Retryable.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// balanceFaultMessage is all a caller learns about a consistency fault.
const balanceFaultMessage = "unable to compute balances"

// Error is returned by every Engine operation.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return e.Op + ": " + e.Msg
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.Error()
}

// Message is the caller-facing text without the operation prefix.
func (e *Error) Message() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(op string, err error) error {
	return &Error{Kind: ErrValidation, Op: op, Err: err}
}

func invalidf(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func stateErrorf(op, format string, args ...any) error {
	return &Error{Kind: ErrState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func unauthorizedf(op, format string, args ...any) error {
	return &Error{Kind: ErrUnauthorized, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func unavailable(op string, err error) error {
	return &Error{Kind: ErrUnavailable, Op: op, Err: err}
}

// entryNotFound is the error for an entry that is missing or that the actor
// cannot see. Both cases read the same.
func entryNotFound(op, kind, id string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %s not found", kind, id)}
}

// fromStorage classifies a storage error.
func fromStorage(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: ErrNotFound, Op: op, Err: err}
	case errors.Is(err, storage.ErrConflict):
		return &Error{Kind: ErrState, Op: op, Err: err}
	case errors.Is(err, storage.ErrDuplicate):
		return &Error{Kind: ErrValidation, Op: op, Err: err}
	}
	return unavailable(op, err)
}
