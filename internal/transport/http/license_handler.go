package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensor/internal/errors"
	"licensor/internal/infrastructure"
	"licensor/internal/license"
	"licensor/internal/middleware"
)

// LicenseHandler exposes the license lifecycle operations.
type LicenseHandler struct {
	engine   *license.Engine
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a license handler.
func NewLicenseHandler(engine *license.Engine, metrics *infrastructure.Metrics, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		engine:   engine,
		metrics:  metrics,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// Routes returns the chi router for license endpoints. The signature gate
// is applied by the caller; every route here assumes an admitted signer.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Post("/generate", h.Generate)
	r.Post("/verify", h.Verify)
	r.Post("/renew", h.Renew)
	r.Post("/details", h.Details)
	r.Post("/block", h.Block)
	r.Post("/unblock", h.Unblock)
	return r
}

// GenerateRequest is the operation payload for POST /license/generate. The
// signature envelope fields are consumed by the admission gate.
type GenerateRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Months int    `json:"months" validate:"omitempty,gte=1,lte=120"`
}

// GenerateResponse returns the issued license and the user key, shown once.
type GenerateResponse struct {
	License    string    `json:"license"`
	UserKey    string    `json:"userKey"`
	ValidUntil time.Time `json:"validUntil"`
}

// Generate handles POST /license/generate.
func (h *LicenseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.generate",
		trace.WithAttributes(
			attribute.String("http.route", "/license/generate"),
			attribute.String("signer", middleware.SignerFromContext(ctx)),
		),
	)
	defer span.End()

	var req GenerateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("email", "a valid email is required"))
		return
	}

	issued, err := h.engine.Generate(ctx, req.Email, req.Months)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}
	h.metrics.LicensesGenerated.Inc()

	span.SetAttributes(attribute.String("license", issued.License))
	render.JSON(w, r, GenerateResponse{
		License:    issued.License,
		UserKey:    issued.UserKey,
		ValidUntil: issued.ValidUntil,
	})
}

// CredentialRequest is the operation payload shared by verify, renew, and
// details.
type CredentialRequest struct {
	License string `json:"license" validate:"required"`
	UserKey string `json:"userKey" validate:"required"`
	Months  int    `json:"months" validate:"omitempty,gte=1,lte=120"`
}

// ValidityResponse is the success shape of verify and renew.
type ValidityResponse struct {
	IsValid bool `json:"isValid"`
}

// Verify handles POST /license/verify.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.engine.Verify(ctx, req.License, req.UserKey); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, ValidityResponse{IsValid: true})
}

// Renew handles POST /license/renew.
func (h *LicenseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.renew",
		trace.WithAttributes(
			attribute.String("http.route", "/license/renew"),
		),
	)
	defer span.End()

	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.engine.Renew(ctx, req.License, req.UserKey, req.Months); err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}
	h.metrics.LicensesRenewed.Inc()
	render.JSON(w, r, ValidityResponse{IsValid: true})
}

// Details handles POST /license/details. Wrong key, blocked, and absent all
// come back as the same not-found signal.
func (h *LicenseHandler) Details(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	details, err := h.engine.Details(ctx, req.License, req.UserKey)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			render.Render(w, r, apierrors.NotFoundError("License"))
			return
		}
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, details)
}

// BlockRequest is the operation payload for block and unblock.
type BlockRequest struct {
	License string `json:"license" validate:"required"`
}

// BlockResponse reports whether the toggle found its license.
type BlockResponse struct {
	Success bool `json:"success"`
}

// Block handles POST /license/block.
func (h *LicenseHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// Unblock handles POST /license/unblock.
func (h *LicenseHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *LicenseHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	ctx := r.Context()

	var req BlockRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("license", "license is required"))
		return
	}

	var err error
	if blocked {
		err = h.engine.Block(ctx, req.License)
	} else {
		err = h.engine.Unblock(ctx, req.License)
	}
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			render.JSON(w, r, BlockResponse{Success: false})
			return
		}
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, BlockResponse{Success: true})
}

func (h *LicenseHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (*CredentialRequest, bool) {
	var req CredentialRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, apierrors.ErrValidation("license", "license and userKey are required"))
		return nil, false
	}
	return &req, true
}

// renderError maps domain errors onto API errors, logging refusals at info
// and faults at error.
func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	apiErr := apierrors.MapLicenseError(err)

	if license.IsRefusal(err) {
		h.logger.InfoContext(ctx, "lifecycle refusal",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("code", apiErr.ErrorCode),
			slog.String("error", err.Error()))
	} else {
		h.logger.ErrorContext(ctx, "request failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	render.Render(w, r, apiErr)
}
