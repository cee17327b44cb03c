package license

import (
	"errors"
	"fmt"
	"time"
)

// Lifecycle refusals are expected, user-facing outcomes. They are returned
// as sentinel errors so transport code can map them to structured results;
// only storage faults propagate as opaque failures.
var (
	// ErrNotFound means no record exists for the given license id.
	ErrNotFound = errors.New("license not found")

	// ErrInvalidKey means the supplied user key does not hash to the
	// stored value.
	ErrInvalidKey = errors.New("invalid user key")

	// ErrBlocked means verification was refused because the record is
	// blocked, whatever the reason.
	ErrBlocked = errors.New("license is blocked")

	// ErrBlockedByAdmin means renewal was refused because the license was
	// blocked while still time-valid; renewal must not bypass an
	// administrative block.
	ErrBlockedByAdmin = errors.New("license is blocked by admin and cannot be renewed")

	// ErrExpired means verification found the validity window past and
	// has flipped the record to blocked.
	ErrExpired = errors.New("license has expired and is now blocked")

	// ErrRenewalExpired means the license sat unrenewed for more than one
	// renewal window past expiry and is now permanently blocked.
	ErrRenewalExpired = errors.New("license cannot be renewed and is now permanently blocked")
)

// TooEarlyError refuses a renewal attempted before the renewal window
// opens, reporting the instant at which it will.
type TooEarlyError struct {
	WindowOpensAt time.Time
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("license cannot be renewed yet; renewal window opens at %s",
		e.WindowOpensAt.Format(time.RFC3339))
}

// IsRefusal reports whether err is a lifecycle refusal rather than a
// storage fault.
func IsRefusal(err error) bool {
	var tooEarly *TooEarlyError
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrBlocked),
		errors.Is(err, ErrBlockedByAdmin),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRenewalExpired),
		errors.As(err, &tooEarly):
		return true
	}
	return false
}
