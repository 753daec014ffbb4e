package api_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/api"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func deposit(amount string) map[string]any {
	return map[string]any{"account": "08031234567", "type": "savings_deposit", "amount": amount}
}

func TestIdempotency_ReplaysSameRequest(t *testing.T) {
	// GIVEN: A deposit sent with an Idempotency-Key
	// WHEN: The client retries with the same key and body
	// THEN: The stored response is replayed and the balance moves once

	_, rdb := newRedis(t)
	f := newFixture(t, rdb)
	f.disburse(t, "08031234567")

	key := uuid.NewString()
	first := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(api.ReplayedHeader))

	retry := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(api.ReplayedHeader))
	assert.JSONEq(t, first.Body.String(), retry.Body.String())

	rr := f.do(t, "GET", "/api/accounts/08031234567", f.admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1000.00", decode[api.AccountDTO](t, rr).SavingsBalance)
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	_, rdb := newRedis(t)
	f := newFixture(t, rdb)
	f.disburse(t, "08031234567")

	key := uuid.NewString()
	rr := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, "POST", "/api/transactions", f.admin, deposit("2000"), api.IdempotencyHeader, key)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestIdempotency_InProgress(t *testing.T) {
	// GIVEN: A provisional entry left by a request still running
	// THEN: A concurrent retry is told to back off

	mr, rdb := newRedis(t)
	f := newFixture(t, rdb)
	f.disburse(t, "08031234567")

	key := uuid.NewString()
	rr := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, rr.Code)

	var stored string
	for _, k := range mr.Keys() {
		if strings.Contains(k, "/api/transactions") {
			stored = k
		}
	}
	require.NotEmpty(t, stored)
	mr.Set(stored, `{"in_progress":true,"body_sha256":""}`)

	rr = f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestIdempotency_ClientErrorsAreReplayed(t *testing.T) {
	// GIVEN: A request rejected by the ledger (no such account)
	// WHEN: The client retries with the same key
	// THEN: The 4xx outcome is replayed; only 5xx releases the key

	mr, rdb := newRedis(t)
	f := newFixture(t, rdb)

	key := uuid.NewString()
	rr := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Len(t, mr.Keys(), 1)

	rr = f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "true", rr.Header().Get(api.ReplayedHeader))
}

func TestIdempotency_HeaderRules(t *testing.T) {
	_, rdb := newRedis(t)
	f := newFixture(t, rdb)

	rr := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, "retry-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Reads are never wrapped
	rr = f.do(t, "GET", "/api/transactions", f.admin, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestIdempotency_KeysScopedBySubject(t *testing.T) {
	// GIVEN: Two operators who happen to send the same key
	// THEN: Each gets their own outcome

	_, rdb := newRedis(t)
	f := newFixture(t, rdb)
	f.disburse(t, "08031234567")

	other, err := f.tokens.Issue("second@example.com", []string{api.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	key := uuid.NewString()
	rr := f.do(t, "POST", "/api/transactions", f.admin, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = f.do(t, "POST", "/api/transactions", other, deposit("1000"), api.IdempotencyHeader, key)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Empty(t, rr.Header().Get(api.ReplayedHeader))

	rr = f.do(t, "GET", "/api/accounts/08031234567", f.admin, nil)
	assert.Equal(t, "2000.00", decode[api.AccountDTO](t, rr).SavingsBalance)
}

func TestIdempotency_StoreUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	f := newFixture(t, rdb)
	mr.Close()

	rr := f.do(t, "POST", "/api/applications", "", applicationBody("08031234567"), api.IdempotencyHeader, uuid.NewString())
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	// Nothing was written
	rr = f.do(t, "GET", "/api/applications", f.admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[api.PageDTO[api.ApplicationDTO]](t, rr).Total)
}
