package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/money"
)

const testSecret = "s3cret"

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewHTTPGateway(server.URL, "MERCHANT", testSecret, 5*time.Second)
	require.NoError(t, err)
	return g
}

func TestInitiateTransfer(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mac := hmac.New(sha512.New, []byte(testSecret))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-Signature"))

		var req transferBody
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "MERCHANT", req.Merchant)
		assert.Equal(t, int64(5000), req.Amount)
		assert.Equal(t, "VND", req.Currency)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"message":"ok","data":{"reference":"` + req.Reference + `","checkout_url":"https://pay.example/c/1"}}`))
	})

	res, err := g.InitiateTransfer(context.Background(), TransferRequest{
		Reference: "ref-1",
		GroupID:   "g1",
		PayerID:   "bob",
		PayeeID:   "alice",
		Amount:    money.New(5000, "VND"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", res.Reference)
	assert.Equal(t, "https://pay.example/c/1", res.CheckoutURL)
}

func TestInitiateTransferErrors(t *testing.T) {
	t.Run("provider rejects", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":false,"message":"merchant disabled"}`))
		})
		_, err := g.InitiateTransfer(context.Background(), TransferRequest{Reference: "r", Amount: money.New(1, "VND")})
		assert.ErrorContains(t, err, "merchant disabled")
	})

	t.Run("bad status", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := g.InitiateTransfer(context.Background(), TransferRequest{Reference: "r", Amount: money.New(1, "VND")})
		assert.ErrorContains(t, err, "unexpected status code: 502")
	})

	t.Run("missing reference", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("request should not be sent")
		})
		_, err := g.InitiateTransfer(context.Background(), TransferRequest{Amount: money.New(1, "VND")})
		assert.ErrorIs(t, err, ErrMissingField)
	})
}

func TestVerifyCallback(t *testing.T) {
	g, err := NewHTTPGateway("https://pay.example", "MERCHANT", testSecret, time.Second)
	require.NoError(t, err)

	signed := func(code, status string) url.Values {
		params := url.Values{
			"reference":          {"ref-1"},
			"response_code":      {code},
			"transaction_status": {status},
			"amount":             {"5000"},
			"currency":           {"VND"},
		}
		params.Set(SignatureParam, g.SignParams(params))
		return params
	}

	cb, err := g.VerifyCallback(signed("00", "00"))
	require.NoError(t, err)
	assert.Equal(t, "ref-1", cb.Reference)
	assert.True(t, cb.Succeeded)
	assert.Equal(t, money.New(5000, "VND"), cb.Amount)

	cb, err = g.VerifyCallback(signed("24", "02"))
	require.NoError(t, err)
	assert.False(t, cb.Succeeded)
	assert.Equal(t, "24", cb.ResponseCode)

	tampered := signed("00", "00")
	tampered.Set("amount", "1")
	_, err = g.VerifyCallback(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	unsigned := signed("00", "00")
	unsigned.Del(SignatureParam)
	_, err = g.VerifyCallback(unsigned)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestVerifyCallbackAmount(t *testing.T) {
	g, err := NewHTTPGateway("https://pay.example", "MERCHANT", testSecret, time.Second)
	require.NoError(t, err)

	sign := func(params url.Values) url.Values {
		params.Set(SignatureParam, g.SignParams(params))
		return params
	}

	_, err = g.VerifyCallback(sign(url.Values{
		"reference":     {"ref-1"},
		"response_code": {"00"},
		"currency":      {"VND"},
	}))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = g.VerifyCallback(sign(url.Values{
		"reference":     {"ref-1"},
		"response_code": {"00"},
		"amount":        {"5000"},
	}))
	assert.ErrorIs(t, err, ErrMissingField)

	for _, bad := range []string{"50.00", "-5000", "0", "lots"} {
		_, err = g.VerifyCallback(sign(url.Values{
			"reference": {"ref-1"},
			"amount":    {bad},
			"currency":  {"VND"},
		}))
		assert.Error(t, err, bad)
	}
}

func TestNewHTTPGatewayValidation(t *testing.T) {
	_, err := NewHTTPGateway("", "M", "s", time.Second)
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = NewHTTPGateway("https://pay.example", "M", "", time.Second)
	assert.ErrorIs(t, err, ErrMissingField)
}
