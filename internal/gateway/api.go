// ABOUTME: HTTP API handlers exposing the reaction engine over JSON
// ABOUTME: Maps validation, transient and auth failures onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/coven-reactions/internal/auth"
	"github.com/2389/coven-reactions/internal/reactions"
	"github.com/2389/coven-reactions/internal/store"
)

// maxBodyBytes caps request bodies; reaction payloads are small.
const maxBodyBytes = 64 << 10

// ReactRequest is the body of PUT .../reactions and POST .../reactions/toggle.
type ReactRequest struct {
	Reaction string         `json:"reaction"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// CountsResponse is returned by GET .../counts.
type CountsResponse struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// ListResponse is returned by the reaction listing endpoints.
type ListResponse struct {
	Reactions []*store.Reaction `json:"reactions"`
	Limit     int               `json:"limit"`
	Skip      int               `json:"skip"`
}

// UnreactResponse is returned by DELETE .../reactions.
type UnreactResponse struct {
	Removed int64 `json:"removed"`
}

// registerHTTPAPIRoutes registers the reactions API. Every route needs a
// bearer token; the token's subject is the reacting user.
func (g *Gateway) registerHTTPAPIRoutes(mux *http.ServeMux) {
	authMiddleware := auth.HTTPAuthMiddleware(g.verifier, g.logger)

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/reactables/{type}/{id}/counts", g.handleCounts},
		{"GET /api/reactables/{type}/{id}/reactions", g.handleListReactors},
		{"GET /api/reactables/{type}/{id}/reactions/me", g.handleUserReactions},
		{"PUT /api/reactables/{type}/{id}/reactions", g.idempotent(g.handleReact)},
		{"POST /api/reactables/{type}/{id}/reactions/toggle", g.idempotent(g.handleToggle)},
		{"DELETE /api/reactables/{type}/{id}/reactions", g.idempotent(g.handleUnreact)},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, authMiddleware(rt.handler))
	}
}

// refFromPath extracts the reactable from the {type}/{id} path segments.
func refFromPath(r *http.Request) reactions.Ref {
	return reactions.Ref{Type: r.PathValue("type"), ID: r.PathValue("id")}
}

// handleCounts handles GET /api/reactables/{type}/{id}/counts.
func (g *Gateway) handleCounts(w http.ResponseWriter, r *http.Request) {
	ref := refFromPath(r)

	counts, err := g.engine.Counts(r.Context(), ref)
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	g.sendJSON(w, http.StatusOK, CountsResponse{Type: ref.Type, ID: ref.ID, Counts: counts, Total: total})
}

// handleListReactors handles GET /api/reactables/{type}/{id}/reactions.
// Query: kind, limit, skip, fields (comma separated projection).
func (g *Gateway) handleListReactors(w http.ResponseWriter, r *http.Request) {
	opts, page, err := parseListQuery(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		opts = append(opts, reactions.WithKind(kind))
	}

	recs, err := g.engine.ListReactors(r.Context(), refFromPath(r), opts...)
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, ListResponse{Reactions: recs, Limit: page.Limit, Skip: page.Skip})
}

// handleUserReactions handles GET /api/reactables/{type}/{id}/reactions/me.
func (g *Gateway) handleUserReactions(w http.ResponseWriter, r *http.Request) {
	opts, page, err := parseListQuery(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := g.engine.UserReactions(r.Context(), refFromPath(r), auth.UserID(r.Context()), opts...)
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, ListResponse{Reactions: recs, Limit: page.Limit, Skip: page.Skip})
}

// handleReact handles PUT /api/reactables/{type}/{id}/reactions.
func (g *Gateway) handleReact(w http.ResponseWriter, r *http.Request) {
	req, err := parseReactRequest(w, r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := g.engine.React(r.Context(), refFromPath(r), auth.UserID(r.Context()), req.Reaction, req.Meta)
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, rec)
}

// handleToggle handles POST /api/reactables/{type}/{id}/reactions/toggle.
func (g *Gateway) handleToggle(w http.ResponseWriter, r *http.Request) {
	req, err := parseReactRequest(w, r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := g.engine.Toggle(r.Context(), refFromPath(r), auth.UserID(r.Context()), req.Reaction, req.Meta)
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, res)
}

// handleUnreact handles DELETE /api/reactables/{type}/{id}/reactions?kind=.
func (g *Gateway) handleUnreact(w http.ResponseWriter, r *http.Request) {
	n, err := g.engine.Unreact(r.Context(), refFromPath(r), auth.UserID(r.Context()), r.URL.Query().Get("kind"))
	if err != nil {
		g.sendEngineError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, UnreactResponse{Removed: n})
}

// parseReactRequest decodes and validates the JSON body of a mutation.
func parseReactRequest(w http.ResponseWriter, r *http.Request) (*ReactRequest, error) {
	var req ReactRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Reaction) == "" {
		return nil, errors.New("reaction is required")
	}
	return &req, nil
}

// parseListQuery reads limit, skip and fields from the query string.
func parseListQuery(r *http.Request) ([]reactions.Option, store.Page, error) {
	q := r.URL.Query()
	page := store.Page{}

	var err error
	if page.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return nil, page, err
	}
	if page.Skip, err = queryInt(q.Get("skip"), "skip"); err != nil {
		return nil, page, err
	}

	opts := []reactions.Option{reactions.WithLimit(page.Limit), reactions.WithSkip(page.Skip)}
	if fields := q.Get("fields"); fields != "" {
		var proj []string
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				proj = append(proj, f)
			}
		}
		opts = append(opts, reactions.WithProjection(proj...))
	}

	// Report the page the store will actually apply.
	return opts, page.Normalize(), nil
}

func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// sendEngineError maps engine and store errors onto HTTP responses.
func (g *Gateway) sendEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reactions.ErrValidation):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTransient):
		g.logger.Warn("transient store failure", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		g.sendJSONError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, "reaction changed concurrently, retry")
	default:
		g.logger.Error("request failed", "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
