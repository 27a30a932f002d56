package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/service"
)

// ResolutionService applies resolutions.
type ResolutionService interface {
	Submit(ctx context.Context, p domain.Principal, sub domain.ResolutionSubmission) (service.Applied, error)
	ResolveByPrice(ctx context.Context, p domain.Principal, req service.OpinionRequest) (service.Applied, error)
	History(ctx context.Context, marketID, optionID string) ([]domain.Resolution, error)
}

// ResolutionHandler serves resolution submission endpoints.
type ResolutionHandler struct {
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(resolutions ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{resolutions: resolutions, logger: logHandler(logger, "resolution")}
}

type resolutionResponse struct {
	ID              string      `json:"id"`
	MarketID        string      `json:"marketId"`
	OptionID        string      `json:"optionId"`
	Outcome         string      `json:"outcome"`
	WinningSide     domain.Side `json:"winningSide"`
	EvidenceHash    string      `json:"evidenceHash,omitempty"`
	EvidenceSource  string      `json:"evidenceSource,omitempty"`
	SubmittedBy     string      `json:"submittedBy"`
	Approvers       []string    `json:"approvers"`
	DisputeDeadline *time.Time  `json:"disputeDeadline,omitempty"`
	MarketResolved  *bool       `json:"marketResolved,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

func toResolutionResponse(a service.Applied) resolutionResponse {
	resp := toRecordResponse(a.Resolution)
	resp.MarketResolved = &a.MarketResolved
	return resp
}

func toRecordResponse(rec domain.Resolution) resolutionResponse {
	approvers := rec.Approvers
	if approvers == nil {
		approvers = []string{}
	}
	return resolutionResponse{
		ID:              rec.ID,
		MarketID:        rec.MarketID,
		OptionID:        rec.OptionID,
		Outcome:         rec.Outcome,
		WinningSide:     rec.WinningSide,
		EvidenceHash:    rec.EvidenceHash,
		EvidenceSource:  rec.EvidenceSource,
		SubmittedBy:     rec.SubmittedBy,
		Approvers:       approvers,
		DisputeDeadline: rec.DisputeDeadline,
		CreatedAt:       rec.CreatedAt,
	}
}

// Submit resolves one option from an explicit outcome and evidence.
// POST /api/resolutions
func (h *ResolutionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.ResolutionSubmission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	applied, err := h.resolutions.Submit(r.Context(), domain.PrincipalFrom(r.Context()), sub)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResolutionResponse(applied))
}

// ResolveByPrice resolves an OPINION option from its current price.
// POST /api/resolutions/opinion
func (h *ResolutionHandler) ResolveByPrice(w http.ResponseWriter, r *http.Request) {
	var req service.OpinionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	applied, err := h.resolutions.ResolveByPrice(r.Context(), domain.PrincipalFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResolutionResponse(applied))
}

// History lists the resolution records of a market.
// GET /api/markets/{id}/resolutions?option_id=
func (h *ResolutionHandler) History(w http.ResponseWriter, r *http.Request) {
	recs, err := h.resolutions.History(r.Context(), pathParam(r, "id"), r.URL.Query().Get("option_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]resolutionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": out})
}
