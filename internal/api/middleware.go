// Package api implements the shortwatch REST API using chi.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// tokenQueryParam lets EventSource clients, which cannot set headers,
// authenticate the /events stream.
const tokenQueryParam = "access_token"

// AuthMiddleware returns middleware that validates a Bearer token taken
// from the Authorization header or the access_token query parameter.
// With enabled false every request passes.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Debug("api: rejected request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("credentials", ok))
				w.Header().Set("WWW-Authenticate", `Bearer realm="shortwatch"`)
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, tok, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		tok = strings.TrimSpace(tok)
		return tok, tok != ""
	}
	if tok := r.URL.Query().Get(tokenQueryParam); tok != "" {
		return tok, true
	}
	return "", false
}
