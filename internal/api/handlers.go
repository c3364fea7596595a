/**
 * @description
 * This file defines the handler set for the banking-service API. Handlers
 * parse incoming requests, call the application services, and write HTTP
 * responses. They act as the bridge between the web layer and the business
 * logic layer; endpoint-specific handlers live in the handlers_*.go files.
 *
 * @dependencies
 * - internal/app: Application services.
 */

package api

import (
	"time"

	"github.com/fintra/banking-service/internal/app"
)

// Handlers holds the application services that handlers will use.
type Handlers struct {
	auth      *app.AuthService
	accounts  *app.AccountService
	transfers *app.TransferService
	webhooks  *app.WebhookProcessor

	limiter         *app.RedisLoginRateLimiter
	loginRateLimit  int
	loginRateWindow time.Duration
}

// NewHandlers creates a new handler set. limiter may be nil when Redis is not
// configured, which disables login throttling.
func NewHandlers(
	auth *app.AuthService,
	accounts *app.AccountService,
	transfers *app.TransferService,
	webhooks *app.WebhookProcessor,
	limiter *app.RedisLoginRateLimiter,
	loginRateLimit int,
) *Handlers {
	return &Handlers{
		auth:            auth,
		accounts:        accounts,
		transfers:       transfers,
		webhooks:        webhooks,
		limiter:         limiter,
		loginRateLimit:  loginRateLimit,
		loginRateWindow: time.Minute,
	}
}
