package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/shortwatch/internal/detectionservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *detectionservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Detections.
	r.Get("/detections", h.ListDetections)
	r.Get("/detections/{id}", h.GetDetection)

	// Search.
	r.Get("/search", h.Search)

	// On-demand processing.
	r.Post("/enrich", h.Enrich)
	r.Get("/extract", h.Extract)

	// Ingestion status.
	r.Get("/status", h.Status)
	r.Post("/rescan", h.Rescan)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
