package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/middleware"
	"github.com/driftwood-collective/driftfeed/internal/telemetry"
)

// maxEventBatch caps how many events a single request may carry.
const maxEventBatch = 100

// EventHandlers ingests engagement event batches from feed clients.
type EventHandlers struct {
	store  telemetry.EventStore
	logger *slog.Logger
}

// NewEventHandlers creates an event ingestion handler.
func NewEventHandlers(store telemetry.EventStore, logger *slog.Logger) *EventHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandlers{
		store:  store,
		logger: logger,
	}
}

// EventBatchRequest is the request payload for POST /events.
type EventBatchRequest struct {
	Events []telemetry.Event `json:"events"`
}

// PostEvents handles POST /events.
// Accepts a batch of engagement events and appends them to the event store.
// Events missing a user_id inherit the request's viewer.
func (h *EventHandlers) PostEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req EventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	if len(req.Events) == 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "At least one event required")
		return
	}
	if len(req.Events) > maxEventBatch {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("Batch exceeds %d events", maxEventBatch))
		return
	}

	viewer := viewerID(r)
	now := time.Now().UTC()

	for i := range req.Events {
		e := &req.Events[i]
		if e.UserID == "" {
			e.UserID = viewer
		}
		if err := validateEvent(e); err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidEvent)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidEvent,
				fmt.Sprintf("Event %d: %s", i, err))
			return
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
	}

	if err := h.store.Append(ctx, req.Events); err != nil {
		h.logger.ErrorContext(ctx, "failed to append events", "error", err, "count", len(req.Events))
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record events")
		return
	}

	writeJSON(w, ctx, http.StatusAccepted, map[string]any{
		"status":          "accepted",
		"events_received": len(req.Events),
	})
}

// validateEvent checks the fields every stored event must carry.
func validateEvent(e *telemetry.Event) error {
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.PostID == "" {
		return fmt.Errorf("post_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Position < 0 {
		return fmt.Errorf("position must not be negative")
	}
	return nil
}
