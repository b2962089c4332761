package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jason-s-yu/pricecheck/internal/room"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err as {"code", "message"} with the given status.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, room.ErrorPayload{Code: room.Code(err), Message: err.Error()})
}

// baseURL derives scheme://host for r, respecting X-Forwarded-Proto.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// joinURL is the link a player follows to join the room with this code.
func joinURL(publicURL string, r *http.Request, code string) string {
	base := strings.TrimSuffix(publicURL, "/")
	if base == "" {
		base = baseURL(r)
	}
	return base + "/?room=" + code
}
