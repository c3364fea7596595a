/**
 * @description
 * Transfer lifecycle rules. Status edges are fixed: a pending transfer may
 * complete or fail, a completed transfer may be reversed, and terminal
 * states accept no further transitions. References act as idempotency keys
 * and follow a strict character set.
 */

package app

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ValidReference reports whether a caller-supplied reference is acceptable
// as an idempotency key.
func ValidReference(reference string) bool {
	return referencePattern.MatchString(reference)
}

// NewReference generates a unique reference with the given prefix. UUID
// hyphens are within the allowed reference character set.
func NewReference(prefix string) string {
	return prefix + uuid.NewString()
}

var allowedTransitions = map[string][]string{
	domain.TransferStatusPending:   {domain.TransferStatusCompleted, domain.TransferStatusFailed},
	domain.TransferStatusCompleted: {domain.TransferStatusReversed},
}

// CanTransition reports whether a transfer may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
