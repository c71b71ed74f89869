package shared

import "errors"

// Error taxonomy shared by every core package. Package level errors wrap one of
// these so callers can branch with errors.Is regardless of origin.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a business rule rejection on stock quantities.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrencyConflict indicates a stale write lost against a concurrent one.
	ErrConcurrencyConflict = errors.New("already processed by someone else")
	// ErrDuplicate indicates a unique key collision.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrPersistence wraps failures of the backing store.
	ErrPersistence = errors.New("persistence failure")
)

// IsTaxonomy reports whether err already carries one of the shared sentinels.
func IsTaxonomy(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrInsufficientStock, ErrConcurrencyConflict, ErrDuplicate, ErrPersistence} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistence):
		return "internal error, please retry later"
	case IsTaxonomy(err):
		return err.Error()
	default:
		return "internal error, please retry later"
	}
}
