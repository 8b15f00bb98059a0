package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/auth"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		err    error
	}{
		{header: "Bearer abc.def", token: "abc.def"},
		{header: "bearer abc", token: "abc"},
		{header: "", err: auth.ErrMissingToken},
		{header: "Basic abc", err: auth.ErrInvalidToken},
		{header: "Bearer", err: auth.ErrInvalidToken},
		{header: "Bearer ", err: auth.ErrInvalidToken},
	}
	for _, tt := range tests {
		token, err := bearerToken(tt.header)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.header)
			continue
		}
		assert.NoError(t, err, tt.header)
		assert.Equal(t, tt.token, token)
	}
}

func TestMemberIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetMemberID(ctx))
	assert.Equal(t, "alice", GetMemberID(WithMemberID(ctx, "alice")))
}

func TestRequireAuthHTTP(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	var seen string
	h := RequireAuthHTTP(jwtManager, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetMemberID(r.Context())
	}))

	token, err := jwtManager.Generate("alice", "alice@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/export/expenses.csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)

	for _, header := range []string{"", "Bearer nonsense"} {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/export/expenses.csv", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Empty(t, seen)
	}
}
