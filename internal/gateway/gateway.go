// Package gateway talks to the hosted payment provider used for online settlement.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/money"
)

var (
	ErrInvalidSignature = errors.New("invalid callback signature")
	ErrMissingField     = errors.New("missing required field")
)

// SuccessCode is the provider's response and transaction status for a completed payment.
const SuccessCode = "00"

// SignatureParam is the callback parameter holding the HMAC signature.
const SignatureParam = "signature"

// TransferRequest asks the provider to move Amount from payer to payee.
type TransferRequest struct {
	Reference   string
	GroupID     string
	PayerID     string
	PayeeID     string
	Amount      money.Money
	Description string
	ReturnURL   string
}

// TransferResult is the provider's acknowledgement of a transfer request.
type TransferResult struct {
	Reference   string
	CheckoutURL string
}

// Callback is a verified provider notification about a transfer.
type Callback struct {
	Reference    string
	Succeeded    bool
	ResponseCode string

	// Amount is what the provider says it moved, in minor units.
	Amount money.Money
}

// Gateway initiates transfers with a payment provider.
type Gateway interface {
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// HTTPGateway is a JSON client for the provider's hosted-checkout API.
// Requests carry an HMAC-SHA512 signature of the body in the X-Signature header.
type HTTPGateway struct {
	BaseURL      string
	MerchantCode string
	secret       []byte
	Client       *http.Client
}

// NewHTTPGateway returns a client for the provider at baseURL.
func NewHTTPGateway(baseURL, merchantCode, secret string, timeout time.Duration) (*HTTPGateway, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: gateway base URL", ErrMissingField)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: gateway secret", ErrMissingField)
	}
	return &HTTPGateway{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		MerchantCode: merchantCode,
		secret:       []byte(secret),
		Client:       &http.Client{Timeout: timeout},
	}, nil
}

type transferBody struct {
	Merchant    string `json:"merchant"`
	Reference   string `json:"reference"`
	GroupID     string `json:"group_id"`
	Payer       string `json:"payer"`
	Payee       string `json:"payee"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type providerResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// InitiateTransfer registers the transfer with the provider and returns its checkout URL.
func (g *HTTPGateway) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Reference == "" {
		return nil, fmt.Errorf("%w: reference", ErrMissingField)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive: %s", req.Amount)
	}

	data, err := json.Marshal(transferBody{
		Merchant:    g.MerchantCode,
		Reference:   req.Reference,
		GroupID:     req.GroupID,
		Payer:       req.PayerID,
		Payee:       req.PayeeID,
		Amount:      req.Amount.Amount,
		Currency:    req.Amount.Currency,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/transfers", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Signature", g.sign(data))

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var res providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !res.Status {
		return nil, fmt.Errorf("gateway error: %s", res.Message)
	}

	ref := res.Data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &TransferResult{Reference: ref, CheckoutURL: res.Data.CheckoutURL}, nil
}

// VerifyCallback checks the signature of a provider callback and decodes its outcome.
// The signature covers every other parameter, sorted by key and joined as k=v pairs.
func (g *HTTPGateway) VerifyCallback(params url.Values) (*Callback, error) {
	got := params.Get(SignatureParam)
	if got == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, SignatureParam)
	}
	want := g.SignParams(params)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return nil, ErrInvalidSignature
	}

	ref := params.Get("reference")
	if ref == "" {
		return nil, fmt.Errorf("%w: reference", ErrMissingField)
	}
	currency := params.Get("currency")
	if currency == "" {
		return nil, fmt.Errorf("%w: currency", ErrMissingField)
	}
	raw := params.Get("amount")
	if raw == "" {
		return nil, fmt.Errorf("%w: amount", ErrMissingField)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("invalid callback amount %q", raw)
	}

	code := params.Get("response_code")
	return &Callback{
		Reference:    ref,
		ResponseCode: code,
		Succeeded:    code == SuccessCode && params.Get("transaction_status") == SuccessCode,
		Amount:       money.New(amount, strings.ToUpper(currency)),
	}, nil
}

// SignParams computes the callback signature over params, ignoring the signature itself.
func (g *HTTPGateway) SignParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != SignatureParam {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params.Get(k)
	}
	return g.sign([]byte(strings.Join(pairs, "&")))
}

func (g *HTTPGateway) sign(data []byte) string {
	mac := hmac.New(sha512.New, g.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
