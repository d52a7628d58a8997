package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes carried in every non-2xx body so clients can branch without
// parsing the message.
const (
	codeUnauthorized  = "unauthorized"
	codeBadRequest    = "bad_request"
	codeInvalidURL    = "invalid_url"
	codeNotFound      = "detection_not_found"
	codeRescanBlocked = "rescan_unavailable"
	codeInternal      = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: response write failed", slog.Int("status", status), slog.String("error", err.Error()))
	}
}

// errResponse is the body of every failed API call.
type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errResponse{Error: msg, Code: code})
}

// internalError logs err against the failing operation and answers 500
// without leaking the cause.
func internalError(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("error", err.Error()))
	slog.Error("api: "+op+" failed", args...)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
