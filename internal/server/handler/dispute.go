package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// DisputeService records and lists disputes.
type DisputeService interface {
	Raise(ctx context.Context, p domain.Principal, req domain.DisputeRequest) (domain.Dispute, error)
	List(ctx context.Context, optionID string) ([]domain.Dispute, error)
}

// DisputeHandler serves dispute endpoints.
type DisputeHandler struct {
	disputes DisputeService
	logger   *slog.Logger
}

// NewDisputeHandler creates a DisputeHandler.
func NewDisputeHandler(disputes DisputeService, logger *slog.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, logger: logHandler(logger, "dispute")}
}

type disputeResponse struct {
	ID       string    `json:"id"`
	MarketID string    `json:"marketId"`
	OptionID string    `json:"optionId"`
	RaisedBy string    `json:"raisedBy"`
	Reason   string    `json:"reason"`
	RaisedAt time.Time `json:"raisedAt"`
}

func toDisputeResponse(d domain.Dispute) disputeResponse {
	return disputeResponse{
		ID:       d.ID,
		MarketID: d.MarketID,
		OptionID: d.OptionID,
		RaisedBy: d.RaisedBy,
		Reason:   d.Reason,
		RaisedAt: d.RaisedAt,
	}
}

// Raise records a dispute against a resolved option.
// POST /api/disputes
func (h *DisputeHandler) Raise(w http.ResponseWriter, r *http.Request) {
	var req domain.DisputeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	d, err := h.disputes.Raise(r.Context(), domain.PrincipalFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

// List returns the disputes raised against one option.
// GET /api/disputes?option_id=...
func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	optionID := r.URL.Query().Get("option_id")
	if optionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "option_id is required")
		return
	}

	ds, err := h.disputes.List(r.Context(), optionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]disputeResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": out})
}
