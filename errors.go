package journal

import (
	"errors"
	"fmt"

	"github.com/xraph/journal/attribution"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("journal: not found")
	ErrInvalidInput  = errors.New("journal: invalid input")
	ErrEventNotFound = errors.New("journal: economic event not found")

	// Ingest validation errors
	ErrIdempotencyRequired  = errors.New("journal: idempotency key required")
	ErrContractIncompatible = errors.New("journal: incompatible integration contract")
	ErrCashFieldsIncomplete = errors.New("journal: cash impact declared without cash fields")
	ErrAmountInvalid        = errors.New("journal: invalid amount")

	// Tenant availability errors
	ErrTenantHalted      = errors.New("journal: tenant is halted")
	ErrTenantReadOnly    = errors.New("journal: tenant is read-only")
	ErrIllegalTransition = errors.New("journal: illegal tenant state transition")
	ErrPanicActive       = errors.New("journal: ingest suspended, invariant panic threshold reached")

	// Storage integrity errors
	ErrImbalancedEntry  = errors.New("journal: posting set does not balance")
	ErrIncompleteEntry  = errors.New("journal: posting set is one-sided")
	ErrInsolventAccount = errors.New("journal: cash account would go negative")
	ErrTenantIsolation  = errors.New("journal: write crosses tenant boundary")

	// Replay errors
	ErrDuplicateReplayKey = errors.New("journal: replay key already recorded")

	// Store errors
	ErrStoreClosed     = errors.New("journal: store is closed")
	ErrTransient       = errors.New("journal: transient storage failure")
	ErrMigrationFailed = errors.New("journal: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("journal: validation failed for %s: %s", e.Field, e.Message)
}

// IsValidation returns true if the error is a caller input problem:
// retrying the same request will fail the same way.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrIdempotencyRequired) ||
		errors.Is(err, ErrContractIncompatible) ||
		errors.Is(err, ErrCashFieldsIncomplete) ||
		errors.Is(err, ErrAmountInvalid) ||
		errors.As(err, &ve)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsTenantUnavailable returns true if the tenant cannot accept writes
// right now. The request may be valid; the tenant's state rejects it.
func IsTenantUnavailable(err error) bool {
	return errors.Is(err, ErrTenantHalted) ||
		errors.Is(err, ErrTenantReadOnly) ||
		errors.Is(err, ErrPanicActive)
}

// IsIntegrityViolation returns true if storage rejected a write for
// breaking a financial invariant. These errors trip the tenant panic
// path.
func IsIntegrityViolation(err error) bool {
	return errors.Is(err, ErrImbalancedEntry) ||
		errors.Is(err, ErrIncompleteEntry) ||
		errors.Is(err, ErrInsolventAccount) ||
		errors.Is(err, ErrTenantIsolation) ||
		errors.Is(err, attribution.ErrUnbalanced)
}

// IsDuplicate returns true if the error marks an idempotent replay of
// an already recorded event.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateReplayKey)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
