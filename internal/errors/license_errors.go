package errors

import (
	"errors"
	"net/http"
	"time"

	"licensor/internal/auth"
	"licensor/internal/license"
)

// Error codes for license and admission outcomes.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeMalformedSignature = "MALFORMED_SIGNATURE"
	CodeLicenseNotFound    = "LICENSE_NOT_FOUND"
	CodeInvalidUserKey     = "INVALID_USER_KEY"
	CodeLicenseBlocked     = "LICENSE_BLOCKED"
	CodeBlockedByAdmin     = "LICENSE_BLOCKED_BY_ADMIN"
	CodeLicenseExpired     = "LICENSE_EXPIRED"
	CodeRenewalExpired     = "RENEWAL_EXPIRED"
	CodeRenewalTooEarly    = "RENEWAL_TOO_EARLY"
)

// RenewalWindowDetails reports when a refused-as-too-early renewal becomes
// possible.
type RenewalWindowDetails struct {
	RenewalWindowStartsAt string `json:"renewalWindowStartsAt"`
}

// MapLicenseError translates lifecycle refusals and admission failures into
// API errors. Storage faults and anything unrecognized map to an opaque
// internal error.
func MapLicenseError(err error) *APIError {
	var tooEarly *license.TooEarlyError

	switch {
	case errors.Is(err, auth.ErrMalformedSignature):
		return New(http.StatusBadRequest, CodeMalformedSignature, "Malformed signature")
	case errors.Is(err, auth.ErrUnauthenticated):
		return New(http.StatusForbidden, CodeUnauthenticated, "Unauthorized public key or invalid signature")
	case errors.Is(err, license.ErrNotFound):
		return New(http.StatusNotFound, CodeLicenseNotFound, "License not found")
	case errors.Is(err, license.ErrInvalidKey):
		return New(http.StatusForbidden, CodeInvalidUserKey, "Invalid user key")
	case errors.Is(err, license.ErrBlockedByAdmin):
		return New(http.StatusForbidden, CodeBlockedByAdmin, "License is blocked by admin and cannot be renewed")
	case errors.Is(err, license.ErrBlocked):
		return New(http.StatusForbidden, CodeLicenseBlocked, "License is blocked")
	case errors.Is(err, license.ErrExpired):
		return New(http.StatusForbidden, CodeLicenseExpired, "License has expired and is now blocked")
	case errors.Is(err, license.ErrRenewalExpired):
		return New(http.StatusGone, CodeRenewalExpired, "License cannot be renewed and is now permanently blocked")
	case errors.As(err, &tooEarly):
		return NewWithDetails(http.StatusConflict, CodeRenewalTooEarly, "License cannot be renewed yet",
			RenewalWindowDetails{
				RenewalWindowStartsAt: tooEarly.WindowOpensAt.Format(time.RFC3339),
			})
	default:
		return ErrInternalServer
	}
}
