package api_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/api"
)

func TestTokenManager_IssueAndValidate(t *testing.T) {
	m := api.NewTokenManager(testSecret, "loan-ledger").WithClock(func() time.Time { return testNow })

	token, err := m.Issue("ops@example.com", []string{api.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "loan-ledger", claims.Issuer)
	assert.True(t, claims.HasRole(api.RoleAdmin))
	assert.False(t, claims.HasRole("teller"))
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Rejects(t *testing.T) {
	now := testNow
	m := api.NewTokenManager(testSecret, "loan-ledger").WithClock(func() time.Time { return now })
	token, err := m.Issue("ops@example.com", []string{api.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := api.NewTokenManager("another-secret-0123456789", "loan-ledger").WithClock(func() time.Time { return now })
		_, err := other.Validate(token)
		assert.ErrorIs(t, err, api.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := api.NewTokenManager(testSecret, "someone-else").WithClock(func() time.Time { return now })
		_, err := other.Validate(token)
		assert.ErrorIs(t, err, api.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := api.NewTokenManager(testSecret, "loan-ledger").WithClock(func() time.Time { return now.Add(2 * time.Hour) })
		_, err := later.Validate(token)
		assert.ErrorIs(t, err, api.ErrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		assert.ErrorIs(t, err, api.ErrInvalidToken)
	})
}

func TestRequireRole(t *testing.T) {
	// GIVEN: The admin routes
	// WHEN: Calling them without a token, with a non-admin token, or an expired one
	// THEN: 401 or 403, and the handler never runs

	f := newFixture(t, nil)

	teller, err := f.tokens.Issue("teller@example.com", []string{"teller"}, time.Hour)
	require.NoError(t, err)
	expired, err := f.tokens.Issue("ops@example.com", []string{api.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"malformed", "abc", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong role", teller, http.StatusForbidden},
		{"admin", f.admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, "GET", "/api/dashboard", tt.token, nil)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	// Public routes need no token
	rr := f.do(t, "GET", "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
