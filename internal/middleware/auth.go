package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensor/internal/auth"
	apierrors "licensor/internal/errors"
)

// maxSignedBodyBytes bounds how much of a signed request body the gate will
// buffer.
const maxSignedBodyBytes = 1 << 20

// signerKey carries the admitted signer's public key through the context.
const signerKey contextKey = "signer"

// signedRequest is the envelope every gated request must carry alongside
// its operation fields.
type signedRequest struct {
	Message   string          `json:"message"`
	Signature json.RawMessage `json:"signature"`
}

// SignatureGate is the admission middleware for mutating operations. It
// buffers the JSON body, authenticates the detached signature over the
// message field, and only then hands the request (body restored) to the
// handler. Routes exempt from authentication are simply mounted without
// this middleware.
//
// onReject, when non-nil, is invoked once per refused request; the metrics
// counter hangs off it.
func SignatureGate(authn *auth.Authenticator, logger *slog.Logger, onReject func()) func(next http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
		if onReject != nil {
			onReject()
		}
		render.Render(w, r, apiErr)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
			if err != nil {
				logger.WarnContext(ctx, "failed to read request body",
					slog.String("error", err.Error()))
				reject(w, r, apierrors.InvalidRequestWithError(err))
				return
			}
			r.Body.Close()

			var signed signedRequest
			if err := json.Unmarshal(body, &signed); err != nil {
				reject(w, r, apierrors.InvalidRequestWithError(err))
				return
			}
			if signed.Message == "" || len(signed.Signature) == 0 {
				logger.WarnContext(ctx, "missing message or signature in request",
					slog.String("path", r.URL.Path))
				reject(w, r, apierrors.New(http.StatusUnauthorized, "MISSING_SIGNATURE", "Missing message or signature"))
				return
			}

			sig, err := auth.ParseSignature(signed.Signature)
			if err != nil {
				reject(w, r, apierrors.MapLicenseError(err))
				return
			}

			pubKeyHex, err := authn.Authenticate([]byte(signed.Message), sig)
			if err != nil {
				reject(w, r, apierrors.MapLicenseError(err))
				return
			}

			// Hand the buffered body back so the handler can decode its
			// own operation fields.
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, signerKey, pubKeyHex)))
		})
	}
}

// SignerFromContext returns the public key admitted by the signature gate,
// or the empty string outside a gated request.
func SignerFromContext(ctx context.Context) string {
	if signer, ok := ctx.Value(signerKey).(string); ok {
		return signer
	}
	return ""
}
