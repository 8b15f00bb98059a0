package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mmynk/splitledger/internal/gateway"
	"github.com/mmynk/splitledger/internal/ledger"
)

// CallbackPath is where the payment gateway reports transfer outcomes.
const CallbackPath = "/gateway/callback"

// CallbackVerifier authenticates gateway callback parameters.
type CallbackVerifier interface {
	VerifyCallback(params url.Values) (*gateway.Callback, error)
}

type callbackResponse struct {
	Reference string `json:"reference,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CallbackHandler serves gateway callbacks. Parameters are read from the query
// string or a form-encoded body.
type CallbackHandler struct {
	engine   *ledger.Engine
	verifier CallbackVerifier
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(engine *ledger.Engine, verifier CallbackVerifier) *CallbackHandler {
	return &CallbackHandler{engine: engine, verifier: verifier}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeCallback(w, http.StatusMethodNotAllowed, callbackResponse{Error: "method not allowed"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeCallback(w, http.StatusBadRequest, callbackResponse{Error: "malformed parameters"})
		return
	}

	cb, err := h.verifier.VerifyCallback(r.Form)
	if err != nil {
		slog.WarnContext(r.Context(), "Rejected gateway callback", "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, gateway.ErrInvalidSignature) {
			status = http.StatusUnauthorized
		}
		writeCallback(w, status, callbackResponse{Error: err.Error()})
		return
	}

	p, err := h.engine.HandleGatewayCallback(r.Context(), *cb)
	if err != nil {
		writeCallback(w, httpStatus(err), callbackResponse{Reference: cb.Reference, Error: errorMessage(err)})
		return
	}
	writeCallback(w, http.StatusOK, callbackResponse{Reference: cb.Reference, State: string(p.State)})
}

// httpStatus maps engine errors onto plain HTTP handlers.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrState):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	var le *ledger.Error
	if errors.As(err, &le) && !errors.Is(err, ledger.ErrUnavailable) {
		return le.Message()
	}
	return "internal error"
}

func writeCallback(w http.ResponseWriter, status int, body callbackResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write callback response", "error", err)
	}
}
