// ABOUTME: Idempotency-Key handling for mutating API requests
// ABOUTME: Replays the first response for a repeated (user, route, key) within the cache TTL

package gateway

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/2389/coven-reactions/internal/auth"
	"github.com/2389/coven-reactions/internal/dedupe"
)

// IdempotencyHeader is the request header carrying the client's key.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency cache.
const ReplayedHeader = "Idempotent-Replayed"

// maxIdempotencyKeyLen bounds keys so they cannot bloat the cache.
const maxIdempotencyKeyLen = 255

// replayedResponse is a captured response kept for replay.
type replayedResponse struct {
	status      int
	contentType string
	body        []byte
}

// captureWriter tees a response into a buffer.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// idempotent wraps a mutating handler. Requests without the header, or with
// the cache disabled, pass straight through. Server errors are not cached so
// the client can retry with the same key.
func (g *Gateway) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" || g.replay == nil {
			next(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			g.sendJSONError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}

		cacheKey := auth.UserID(r.Context()) + "\x00" + r.Method + " " + r.URL.Path + "\x00" + key

		cached, status := g.replay.Claim(cacheKey)
		switch status {
		case dedupe.Done:
			g.logger.Debug("replaying idempotent response", "path", r.URL.Path, "key", key)
			w.Header().Set(ReplayedHeader, "true")
			if cached.contentType != "" {
				w.Header().Set("Content-Type", cached.contentType)
			}
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		case dedupe.Pending:
			g.sendJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress")
			return
		}

		cw := &captureWriter{ResponseWriter: w}
		defer func() {
			if cw.status == 0 || cw.status >= http.StatusInternalServerError {
				g.replay.Release(cacheKey)
				return
			}
			g.replay.Complete(cacheKey, &replayedResponse{
				status:      cw.status,
				contentType: cw.Header().Get("Content-Type"),
				body:        bytes.Clone(cw.body.Bytes()),
			})
		}()

		next(cw, r)
	}
}
