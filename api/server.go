/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  Public:
    POST /api/applications               Submit a loan application
    POST /api/calculator/quote           Price a loan
    GET  /api/health                     Store liveness

  Admin (Bearer token with the admin role):
    /api/applications/*                  Review and move applications
    /api/accounts/*                      Balances, history, statements, penalties
    /api/transactions/*                  Record, search, reverse, receipts
    /api/transfers                       Savings transfers
    /api/loans/sweep                     Close repaid, default overdue loans
    /api/dashboard                       Portfolio overview

IDEMPOTENCY:
  Every POST that moves money or changes state goes through Idempotency
  when Options.Redis is set. Clients send an Idempotency-Key header; a
  retry with the same key and body replays the stored response.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer tokens and role checks
  - idempotency.go: Replay protection
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

// RoleAdmin is the role required by the back-office routes.
const RoleAdmin = "admin"

// Options configure the router.
type Options struct {
	Tokens         *TokenManager
	Redis          *redis.Client // nil disables idempotency
	IdempotencyTTL time.Duration
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader},
		ExposedHeaders:   []string{ReplayedHeader},
		AllowCredentials: true,
	}))

	idem := Idempotency(opts.Redis, opts.IdempotencyTTL)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/calculator/quote", h.Quote)
		r.With(idem).Post("/applications", h.SubmitApplication)

		// Back office
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(opts.Tokens, RoleAdmin))

			r.Get("/dashboard", h.Dashboard)

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", h.ListApplications)
				r.Get("/{id}", h.GetApplication)
				r.Get("/{id}/schedule", h.GetSchedule)
				r.With(idem).Post("/{id}/status", h.ChangeStatus)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Get("/{ref}", h.GetAccount)
				r.Get("/{ref}/transactions", h.GetAccountTransactions)
				r.Get("/{ref}/statement.xlsx", h.ExportStatement)
				r.With(idem).Post("/{ref}/penalties", h.AssessPenalty)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.SearchTransactions)
				r.With(idem).Post("/", h.RecordTransaction)
				r.Get("/{id}", h.GetTransaction)
				r.Get("/{id}/receipt.pdf", h.ExportReceipt)
				r.With(idem).Post("/{id}/reverse", h.ReverseTransaction)
			})

			r.With(idem).Post("/transfers", h.Transfer)
			r.Post("/loans/sweep", h.SweepLoans)
		})
	})

	return r
}
