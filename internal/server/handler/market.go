package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/service"
)

// MarketService defines what the market handler needs from the service
// layer. It is declared locally so the handler depends on behaviour only.
type MarketService interface {
	View(ctx context.Context, marketID string) (service.MarketView, error)
}

// PriceService prices options and ingests trade fills.
type PriceService interface {
	Quote(ctx context.Context, optionID string) (service.Quote, error)
	QuoteCost(ctx context.Context, optionID string, side domain.Side, shares decimal.Decimal) (service.CostQuote, error)
	ApplyFill(ctx context.Context, p domain.Principal, fill domain.Fill) (service.Quote, error)
}

// MarketHandler serves market, price and fill endpoints.
type MarketHandler struct {
	markets MarketService
	prices  PriceService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and logger.
func NewMarketHandler(markets MarketService, prices PriceService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		prices:  prices,
		logger:  logHandler(logger, "market"),
	}
}

// GetMarket returns a market with its options, prices and window status.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	view, err := h.markets.View(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetPrice returns the current YES/NO price of an option.
// GET /api/options/{id}/price
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	q, err := h.prices.Quote(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetCost returns what buying shares of one side would cost.
// GET /api/options/{id}/cost?side=yes&shares=10
func (h *MarketHandler) GetCost(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	side, err := parseSide(query.Get("side"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	shares, err := decimal.NewFromString(query.Get("shares"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "shares must be a decimal number")
		return
	}

	c, err := h.prices.QuoteCost(r.Context(), pathParam(r, "id"), side, shares)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PostFill applies an executed trade to an option's pool.
// POST /api/fills
func (h *MarketHandler) PostFill(w http.ResponseWriter, r *http.Request) {
	var fill domain.Fill
	if err := decodeJSON(w, r, &fill); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	q, err := h.prices.ApplyFill(r.Context(), domain.PrincipalFrom(r.Context()), fill)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// parseSide accepts "yes"/"no" or the numeric side values.
func parseSide(s string) (domain.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "1":
		return domain.SideYes, nil
	case "no", "2":
		return domain.SideNo, nil
	}
	return domain.SideNone, fmt.Errorf("%w: side must be yes or no", domain.ErrInvalidRequest)
}
