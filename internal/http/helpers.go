// Package http exposes the operator-facing CRUD and control-loop
// surface: campaign create/get/pause/resume, campaign-lead retry, and
// reset of an account's stuck tasks. Senders and outbound accounts have
// no HTTP routes.
// It follows the teacher's net/http 1.22+ pattern-based ServeMux style
// (method+path patterns, bearer-token auth middleware, writeJSON
// helper).
package http

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}
