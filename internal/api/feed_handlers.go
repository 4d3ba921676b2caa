package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/driftwood-collective/driftfeed/internal/middleware"
	"github.com/driftwood-collective/driftfeed/internal/pipeline"
)

// FeedHandlers serves the personalized feed endpoints on top of the ranking
// pipeline. The pipeline never returns an error, so these handlers only fail
// on malformed requests.
type FeedHandlers struct {
	service *pipeline.Service
	logger  *slog.Logger
}

// maxCursorLength bounds the cursor query parameter. Cursors are post IDs,
// so anything longer is garbage and rejected before it reaches the cache.
const maxCursorLength = 128

// NewFeedHandlers creates feed handlers backed by the given pipeline service.
func NewFeedHandlers(service *pipeline.Service, logger *slog.Logger) *FeedHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandlers{
		service: service,
		logger:  logger,
	}
}

// viewerID resolves the requesting user, preferring the identity middleware
// and falling back to the X-User-ID header for direct calls.
func viewerID(r *http.Request) string {
	if id := middleware.GetUserID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-User-ID")
}

// GetFeed handles GET /feed.
//
// Query parameters:
//   - cursor: opaque pagination cursor from a previous response (optional)
//   - refresh: "true" forces a pipeline run even when a cached feed exists
//
// The viewer is taken from the identity middleware or the X-User-ID header.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	viewer := viewerID(r)
	if viewer == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeMissingViewer)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMissingViewer, "Missing X-User-ID header")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	if len(cursor) > maxCursorLength {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidCursor)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCursor, "Cursor is not valid")
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	resp := h.service.GenerateFeed(ctx, viewer, cursor, refresh)
	writeJSON(w, ctx, http.StatusOK, resp)
}

// RefreshFeed handles POST /feed/refresh.
// It recomputes the viewer's feed from scratch and returns the first page.
func (h *FeedHandlers) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	viewer := viewerID(r)
	if viewer == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeMissingViewer)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMissingViewer, "Missing X-User-ID header")
		return
	}

	resp := h.service.GenerateFeed(ctx, viewer, "", true)
	writeJSON(w, ctx, http.StatusOK, resp)
}

// InvalidateFeed handles POST /feed/invalidate.
// It drops the viewer's cached feed and interest profile so the next request
// recomputes both. Used after bulk actions such as following many accounts.
func (h *FeedHandlers) InvalidateFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	viewer := viewerID(r)
	if viewer == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeMissingViewer)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMissingViewer, "Missing X-User-ID header")
		return
	}

	h.service.InvalidateFeed(ctx, viewer)
	writeJSON(w, ctx, http.StatusOK, map[string]string{"status": "invalidated"})
}

// writeJSON writes a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
