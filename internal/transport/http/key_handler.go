package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licensor/internal/auth"
	apierrors "licensor/internal/errors"
	"licensor/internal/middleware"
)

// KeyHandler exposes whitelist administration. Like every gated route it is
// only reachable by an already whitelisted signer.
type KeyHandler struct {
	authn  *auth.Authenticator
	logger *slog.Logger
}

// NewKeyHandler creates a key handler.
func NewKeyHandler(authn *auth.Authenticator, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		authn:  authn,
		logger: logger.With(slog.String("handler", "keys")),
	}
}

// Routes returns the chi router for key endpoints.
func (h *KeyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	return r
}

// RegisterKeyRequest optionally names the public key to whitelist. When the
// field is absent the service mints a fresh pair instead.
type RegisterKeyRequest struct {
	PublicKey string `json:"publicKey,omitempty"`
}

// RegisterKeyResponse echoes the whitelisted public key. PrivateKey is only
// set when the service generated the pair, and is never stored.
type RegisterKeyResponse struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// Register handles POST /keys/register. With a publicKey in the body it
// whitelists that key; without one it generates a pair, whitelists the
// public half, and returns both halves once.
func (h *KeyHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterKeyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if req.PublicKey != "" {
		canonical, err := auth.CanonicalizeKey(req.PublicKey)
		if err != nil {
			render.Render(w, r, apierrors.MapLicenseError(err))
			return
		}
		if err := h.authn.RegisterKey(canonical); err != nil {
			render.Render(w, r, apierrors.MapLicenseError(err))
			return
		}
		h.logger.InfoContext(ctx, "key whitelisted",
			slog.String("registered_by", middleware.SignerFromContext(ctx)))
		render.JSON(w, r, RegisterKeyResponse{PublicKey: canonical})
		return
	}

	pair, err := auth.GenerateKeyPair()
	if err != nil {
		h.logger.ErrorContext(ctx, "key generation failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if err := h.authn.RegisterKey(pair.PublicKey); err != nil {
		render.Render(w, r, apierrors.MapLicenseError(err))
		return
	}
	h.logger.InfoContext(ctx, "key pair generated and whitelisted",
		slog.String("registered_by", middleware.SignerFromContext(ctx)))
	render.JSON(w, r, RegisterKeyResponse{
		PublicKey:  pair.PublicKey,
		PrivateKey: pair.PrivateKey,
	})
}
