/**
 * @description
 * Sentinel errors shared across the service. Business logic wraps these with
 * `fmt.Errorf("...: %w", err)` and the API layer maps them to HTTP statuses,
 * so callers compare with `errors.Is` rather than string matching.
 */

package domain

import "errors"

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks missing or invalid credentials, including
	// expired, revoked, or already-rotated refresh tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks an authenticated caller acting on a resource
	// they do not own.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict marks a uniqueness violation, such as a duplicate email
	// at registration.
	ErrConflict = errors.New("resource already exists")

	// ErrInsufficientFunds marks a debit that would take a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidState marks a status transition outside the allowed edges
	// of the transfer lifecycle.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrGateway marks a provider failure after retries were exhausted or
	// the provider returned a terminal error.
	ErrGateway = errors.New("payment gateway error")
)
