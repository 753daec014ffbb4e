/*
idempotency.go - Replay protection for state-changing requests

PURPOSE:
  A client that retries a POST after a timeout must not move money twice.
  The client sends Idempotency-Key (a UUID); the first request with that
  key runs, later ones get the stored response back.

FLOW:
  1. SETNX a provisional entry {in_progress, body_sha256} for 60s
  2. Key already present:
       different body hash     -> 409
       finished entry          -> replay stored status and body
       still in progress       -> 409
  3. Run the handler, capturing status and body
  4. Status < 500: store the final entry for the configured TTL
     Status >= 500: delete the entry so the client can retry

  Keys are scoped by method, path and authenticated subject, so two
  operators reusing a key never see each other's responses.

  Redis unavailable -> 503 before the handler runs.
*/
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyHeader carries the client-chosen key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the store.
	ReplayedHeader = "Idempotent-Replayed"

	provisionalTTL = 60 * time.Second
	defaultIdemTTL = 24 * time.Hour
	redisTimeout   = 2 * time.Second
	maxBodyBytes   = 1 << 20
)

type idempEntry struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodySHA256 string    `json:"body_sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

// Idempotency returns middleware enforcing Idempotency-Key on the routes
// it wraps. A nil client disables it.
func Idempotency(rdb *redis.Client, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdemTTL
	}
	log := slog.Default().With("component", "idempotency")

	return func(next http.Handler) http.Handler {
		if rdb == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if raw == "" {
				writeError(w, http.StatusBadRequest, "Missing "+IdempotencyHeader+" header", nil)
				return
			}
			reqKey, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, IdempotencyHeader+" must be a UUID", err)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Failed to read request body", err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			key := buildKey(r.Method, r.URL.Path, subject(r.Context()), reqKey.String())

			ctx, cancel := context.WithTimeout(r.Context(), redisTimeout)
			ok, err := provisionalSet(ctx, rdb, key, idempEntry{
				InProgress: true,
				BodySHA256: hash,
				CreatedAt:  time.Now().UTC(),
			})
			if err != nil {
				cancel()
				log.Error("idempotency store unavailable", "error", err)
				writeError(w, http.StatusServiceUnavailable, "Idempotency store unavailable", nil)
				return
			}
			if !ok {
				cur, err := loadEntry(ctx, rdb, key)
				cancel()
				if err != nil {
					log.Warn("failed to load idempotency entry", "key", key, "error", err)
				}
				switch {
				case cur.BodySHA256 != "" && cur.BodySHA256 != hash:
					writeError(w, http.StatusConflict, IdempotencyHeader+" reused with a different body", nil)
				case !cur.InProgress && cur.Code != 0:
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(ReplayedHeader, "true")
					w.WriteHeader(cur.Code)
					w.Write(cur.Body)
				default:
					writeError(w, http.StatusConflict, "Request is already in progress", nil)
				}
				return
			}
			cancel()

			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}

			// The client may already be gone; the outcome still has to be stored.
			ctx, cancel = context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer cancel()
			if code >= http.StatusInternalServerError {
				if err := rdb.Del(ctx, key).Err(); err != nil {
					log.Warn("failed to release idempotency key", "key", key, "error", err)
				}
				return
			}
			final := idempEntry{
				Code:       code,
				Body:       buf.Bytes(),
				BodySHA256: hash,
				CreatedAt:  time.Now().UTC(),
			}
			if err := saveFinal(ctx, rdb, key, final, ttl); err != nil {
				log.Warn("failed to store idempotent response", "key", key, "error", err)
			}
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func buildKey(method, path, subject, reqKey string) string {
	return "idem:" + strings.ToLower(method) + ":" + path + ":" + subject + ":" + reqKey
}

func bodyHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func provisionalSet(ctx context.Context, rdb *redis.Client, key string, e idempEntry) (bool, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, b, provisionalTTL).Result()
}

func loadEntry(ctx context.Context, rdb *redis.Client, key string) (idempEntry, error) {
	var e idempEntry
	b, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return e, nil
		}
		return e, err
	}
	return e, json.Unmarshal(b, &e)
}

func saveFinal(ctx context.Context, rdb *redis.Client, key string, e idempEntry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}
