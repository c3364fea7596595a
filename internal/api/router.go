/**
 * @description
 * This file sets up the HTTP router for the banking-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fintra/banking-service/internal/app"
)

// Routes creates and returns the router for the banking service.
func Routes(h *Handlers, tokens *app.TokenManager, allowedOrigins string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(allowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public auth endpoints.
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)
		r.Post("/refresh", h.RefreshHandler)
		r.Post("/logout", h.LogoutHandler)
		r.Get("/verify-email", h.VerifyEmailHandler)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokens))
			r.Post("/change-password", h.ChangePasswordHandler)
		})
	})

	// Provider webhooks authenticate by HMAC signature, not bearer token.
	r.Post("/webhooks/raven", h.RavenWebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.CreateAccountHandler)
			r.Get("/", h.ListAccountsHandler)
			r.Get("/{id}", h.GetAccountHandler)
			r.Patch("/{id}", h.UpdateAccountHandler)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/account", h.AccountTransferHandler)
			r.Post("/bank", h.BankTransferHandler)
			r.Post("/bulk", h.BulkTransferHandler)
			r.Get("/", h.ListTransfersHandler)
			r.Get("/{id}", h.GetTransferHandler)
			r.Get("/{id}/status", h.GetTransferStatusHandler)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactionsHandler)
			r.Get("/summary", h.TransactionSummaryHandler)
			r.Get("/{id}", h.GetTransactionHandler)
		})
	})

	return r
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
