package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/shortwatch/internal/apperr"
	"github.com/starford/shortwatch/internal/detectionservice"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc *detectionservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *detectionservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListDetections handles GET /api/detections.
//
//	@Summary		List recorded detections, newest first
//	@Tags			detections
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			origin		query		string	false	"Filter by origin"	Enums(history, sidecar, manual)
//	@Param			video_id	query		string	false	"Filter by video id"
//	@Success		200			{object}	DetectionListResponse
//	@Security		BearerAuth
//	@Router			/detections [get]
func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListDetections(r.Context(), store.ListQuery{
		Limit:   limit,
		Offset:  offset,
		Origin:  events.Origin(q.Get("origin")),
		VideoID: q.Get("video_id"),
	})
	if err != nil {
		internalError(w, "list detections", err)
		return
	}
	writeJSON(w, http.StatusOK, DetectionListResponse{Detections: items, Total: total})
}

// GetDetection handles GET /api/detections/{id}.
//
//	@Summary		Get a single detection
//	@Tags			detections
//	@Produce		json
//	@Param			id	path		string	true	"Detection id"
//	@Success		200	{object}	Detection
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/detections/{id} [get]
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.svc.GetDetection(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "no detection with id "+id)
		} else {
			internalError(w, "get detection", err, slog.String("id", id))
		}
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across titles, analyses and transcripts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		internalError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Enrich handles POST /api/enrich.
//
//	@Summary		Enrich a video URL now and publish it as a manual detection
//	@Tags			detections
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EnrichRequest	true	"URL to enrich"
//	@Success		200		{object}	Detection
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/enrich [post]
func (h *Handler) Enrich(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "url is required")
		return
	}

	d, err := h.svc.Enrich(r.Context(), req.URL)
	switch {
	case d != nil:
		if err != nil {
			slog.Warn("enrich: publish incomplete", slog.String("url", req.URL), slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusOK, d)
	case errors.Is(err, apperr.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, codeInvalidURL, "no video id in url")
	default:
		internalError(w, "enrich", err, slog.String("url", req.URL))
	}
}

// Extract handles GET /api/extract.
//
//	@Summary		Parse a URL into its video id and canonical URL
//	@Tags			detections
//	@Produce		json
//	@Param			url	query		string	true	"URL to parse"
//	@Success		200	{object}	ExtractResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/extract [get]
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query parameter 'url' is required")
		return
	}
	ex, err := h.svc.Extract(u)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidURL, "no video id in url")
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// Status handles GET /api/status.
//
//	@Summary		Report watcher watermark and sidecar state
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Rescan handles POST /api/rescan.
//
//	@Summary		Read the browser history now
//	@Tags			status
//	@Success		202	"Rescan scheduled"
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rescan [post]
func (h *Handler) Rescan(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.Rescan(); err != nil {
		writeError(w, http.StatusConflict, codeRescanBlocked, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
