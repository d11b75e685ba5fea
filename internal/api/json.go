package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the application/problem+json body returned for every error.
// Type is a relative URI naming one of the problem kinds below; RequestID
// echoes the X-Request-Id assigned by the logging middleware.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type problemKind struct {
	slug       string
	status     int
	title      string
	retryAfter string
}

var (
	problemMethod          = problemKind{"method-not-allowed", http.StatusMethodNotAllowed, "Method Not Allowed", ""}
	problemMissingParams   = problemKind{"missing-parameters", http.StatusBadRequest, "Missing parameters", ""}
	problemInvalidCategory = problemKind{"invalid-category", http.StatusBadRequest, "Invalid category", ""}
	problemRateLimited     = problemKind{"rate-limited", http.StatusTooManyRequests, "Too Many Requests", "1"}
	problemRouteNotFound   = problemKind{"route-not-found", http.StatusNotFound, "Route not found", ""}
	problemStoreDown       = problemKind{"graph-store-unavailable", http.StatusServiceUnavailable, "Graph store unavailable", "30"}
	problemRouteFailed     = problemKind{"route-failed", http.StatusInternalServerError, "Route query failed", ""}
	problemStatsFailed     = problemKind{"stats-failed", http.StatusServiceUnavailable, "Category stats failed", ""}
	problemUnauthorized    = problemKind{"unauthorized", http.StatusUnauthorized, "Unauthorized", ""}
	problemForbidden       = problemKind{"forbidden", http.StatusForbidden, "Forbidden", ""}
	problemRebuildOff      = problemKind{"rebuild-disabled", http.StatusServiceUnavailable, "Rebuild disabled", ""}
	problemUnknownCategory = problemKind{"unknown-category", http.StatusNotFound, "Unknown category", ""}
	problemRebuildBusy     = problemKind{"rebuild-in-progress", http.StatusConflict, "Rebuild in progress", ""}
	problemRebuildFailed   = problemKind{"rebuild-failed", http.StatusInternalServerError, "Rebuild failed", ""}
	problemNotReady        = problemKind{"not-ready", http.StatusServiceUnavailable, "Not Ready", ""}
)

func (k problemKind) uri() string { return "/problems/" + k.slug }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem renders kind for the request r. The middleware sets
// X-Request-Id on the response before handlers run, so it is read back here.
func writeProblem(w http.ResponseWriter, r *http.Request, kind problemKind, detail string) {
	h := w.Header()
	if kind.retryAfter != "" { h.Set("Retry-After", kind.retryAfter) }
	h.Set("Content-Type", "application/problem+json")
	w.WriteHeader(kind.status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:      kind.uri(),
		Title:     kind.title,
		Status:    kind.status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: h.Get("X-Request-Id"),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeProblem(w, r, problemMethod, r.Method+" not supported")
}
