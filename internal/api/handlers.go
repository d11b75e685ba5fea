package api

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "poigraph/internal/auth"
    "poigraph/internal/buildinfo"
    "poigraph/internal/pipeline"
    "poigraph/internal/route"
)

// RouteHandler serves GET /v1/route?start=&end=&category=
func (s *Server) RouteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { methodNotAllowed(w, r, http.MethodGet); return }
    if !s.limiter.Allow() {
        writeProblem(w, r, problemRateLimited, "route query rate exceeded")
        return
    }
    q := r.URL.Query()
    start, end, category := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end")), strings.TrimSpace(q.Get("category"))
    if start == "" || end == "" || category == "" {
        writeProblem(w, r, problemMissingParams, "required: start, end, category")
        return
    }

    res, err := s.Resolver.Route(r.Context(), start, end, category)
    switch {
    case err == nil:
        writeJSON(w, http.StatusOK, res)
    case errors.Is(err, route.ErrNotFound):
        writeProblem(w, r, problemRouteNotFound, err.Error())
    case errors.Is(err, route.ErrUnavailable):
        writeProblem(w, r, problemStoreDown, err.Error())
    default:
        s.log.Error().Err(err).Str("category", category).Msg("route query failed")
        writeProblem(w, r, problemRouteFailed, err.Error())
    }
}

// CategoriesHandler lists stored categories with their cluster and route counts.
func (s *Server) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { methodNotAllowed(w, r, http.MethodGet); return }
    stats, err := s.Graph.CategoryStats(r.Context())
    if err != nil { writeProblem(w, r, problemStatsFailed, err.Error()); return }
    writeJSON(w, http.StatusOK, map[string]any{"categories": stats})
}

// RebuildHandler serves POST /v1/admin/rebuild[?category=]. Without a
// category every configured category is rebuilt.
func (s *Server) RebuildHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { methodNotAllowed(w, r, http.MethodPost); return }
    if _, err := s.Auth.Admin(r); err != nil {
        if errors.Is(err, auth.ErrForbidden) {
            writeProblem(w, r, problemForbidden, err.Error())
            return
        }
        w.Header().Set("WWW-Authenticate", "Bearer")
        writeProblem(w, r, problemUnauthorized, err.Error())
        return
    }
    if s.Pipeline == nil { writeProblem(w, r, problemRebuildOff, ""); return }

    category := strings.TrimSpace(r.URL.Query().Get("category"))
    if category == "" {
        results, err := s.Pipeline.RebuildAll(r.Context())
        if err != nil {
            writeProblem(w, r, problemRebuildFailed, err.Error())
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"results": results})
        return
    }

    res, err := s.Pipeline.RebuildCategory(r.Context(), category)
    switch {
    case err == nil:
        writeJSON(w, http.StatusOK, res)
    case errors.Is(err, pipeline.ErrUnknownCategory):
        writeProblem(w, r, problemUnknownCategory, err.Error())
    case errors.Is(err, pipeline.ErrBusy):
        writeProblem(w, r, problemRebuildBusy, err.Error())
    default:
        writeProblem(w, r, problemRebuildFailed, err.Error())
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if s.POIs != nil {
        if err := s.POIs.Ping(ctx); err != nil { writeProblem(w, r, problemNotReady, "poi repository: "+err.Error()); return }
    }
    if err := s.Graph.Ping(ctx); err != nil { writeProblem(w, r, problemNotReady, "graph store: "+err.Error()); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build":  buildinfo.Info(),
        "time":   time.Now().UTC().Format(time.RFC3339),
        "config": s.info,
    }
    if s.Pipeline != nil {
        info["categories"] = s.Pipeline.Categories()
    }
    writeJSON(w, 200, info)
}
