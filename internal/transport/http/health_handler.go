package http

import (
	"net/http"

	"github.com/go-chi/render"
)

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health handles GET /healthz. It answers without touching the store or the
// signature gate so orchestrators can probe freely.
func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "ok"})
}
