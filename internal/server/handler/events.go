package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// EventReader reads the durable event stream.
type EventReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler lets consumers that missed pub/sub messages catch up from
// the durable stream.
type EventsHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(events EventReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{events: events, logger: logHandler(logger, "events")}
}

type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List returns up to limit events after the given stream id. The response
// carries the id to pass as after on the next call.
// GET /api/events?after=0&limit=100
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	limit := defaultEventPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventPage)
	}

	msgs, err := h.events.StreamRead(r.Context(), domain.EventStream, after, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]streamEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			h.logger.WarnContext(r.Context(), "skipping malformed stream entry", slog.String("id", m.ID))
			next = m.ID
			continue
		}
		out = append(out, streamEntry{ID: m.ID, Event: m.Payload})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"next":   next,
	})
}
