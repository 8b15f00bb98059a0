package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
)

// toConnectError maps engine error kinds to Connect codes. Validation and state
// errors keep their message; anything internal is replaced by a generic one.
func toConnectError(procedure string, err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, ledger.ErrValidation):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrState):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ledger.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ledger.ErrConsistency):
		code = connect.CodeInternal
	case errors.Is(err, ledger.ErrUnavailable):
		code = connect.CodeUnavailable
	}

	var le *ledger.Error
	switch {
	case code == connect.CodeUnavailable:
		slog.Error("Collaborator unavailable", "procedure", procedure, "error", err)
		return connect.NewError(code, errors.New("service temporarily unavailable, please retry"))
	case errors.As(err, &le):
		return connect.NewError(code, errors.New(le.Message()))
	}
	slog.Error("Unexpected error", "procedure", procedure, "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

func invalidArgument(err error) error {
	return connect.NewError(connect.CodeInvalidArgument, err)
}
