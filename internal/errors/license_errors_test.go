package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensor/internal/auth"
	"licensor/internal/license"
)

func TestMapLicenseError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{auth.ErrMalformedSignature, http.StatusBadRequest, CodeMalformedSignature},
		{auth.ErrUnauthenticated, http.StatusForbidden, CodeUnauthenticated},
		{license.ErrNotFound, http.StatusNotFound, CodeLicenseNotFound},
		{license.ErrInvalidKey, http.StatusForbidden, CodeInvalidUserKey},
		{license.ErrBlocked, http.StatusForbidden, CodeLicenseBlocked},
		{license.ErrBlockedByAdmin, http.StatusForbidden, CodeBlockedByAdmin},
		{license.ErrExpired, http.StatusForbidden, CodeLicenseExpired},
		{license.ErrRenewalExpired, http.StatusGone, CodeRenewalExpired},
	}
	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			apiErr := MapLicenseError(tc.err)
			assert.Equal(t, tc.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tc.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestMapLicenseErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", license.ErrBlocked)
	apiErr := MapLicenseError(wrapped)
	assert.Equal(t, CodeLicenseBlocked, apiErr.ErrorCode)
}

func TestMapLicenseErrorTooEarly(t *testing.T) {
	opens := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	apiErr := MapLicenseError(&license.TooEarlyError{WindowOpensAt: opens})

	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, CodeRenewalTooEarly, apiErr.ErrorCode)

	details, ok := apiErr.Details.(RenewalWindowDetails)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T12:00:00Z", details.RenewalWindowStartsAt)
}

func TestMapLicenseErrorUnknownIsOpaque(t *testing.T) {
	apiErr := MapLicenseError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.NotContains(t, apiErr.Message, assert.AnError.Error())
}
