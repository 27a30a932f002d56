package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// SettlementService pays out finalized positions and liquidity.
type SettlementService interface {
	ClaimPosition(ctx context.Context, p domain.Principal, positionID string) (decimal.Decimal, error)
	ClaimLiquidity(ctx context.Context, p domain.Principal, lpID string) (decimal.Decimal, error)
}

// ClaimHandler serves claim endpoints.
type ClaimHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(settlement SettlementService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{settlement: settlement, logger: logHandler(logger, "claim")}
}

// ClaimPosition pays out a trader position.
// POST /api/claims/positions/{id}
func (h *ClaimHandler) ClaimPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	payout, err := h.settlement.ClaimPosition(r.Context(), domain.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"positionId": id, "payout": payout.String()})
}

// ClaimLiquidity withdraws a liquidity position.
// POST /api/claims/liquidity/{id}
func (h *ClaimHandler) ClaimLiquidity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	payout, err := h.settlement.ClaimLiquidity(r.Context(), domain.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"liquidityId": id, "payout": payout.String()})
}
