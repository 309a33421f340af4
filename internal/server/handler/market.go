package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
}

// ResolutionService settles markets.
type ResolutionService interface {
	ResolveMarket(ctx context.Context, req domain.ResolutionRequest) (domain.ResolutionSnapshot, error)
	Archived(ctx context.Context, marketID string) ([]byte, error)
}

// MarketHandler serves the market and resolution endpoints.
type MarketHandler struct {
	markets     MarketService
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, resolutions ResolutionService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, resolutions: resolutions, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets pages through markets, optionally filtered by status.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "count markets", err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMarketInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, err.Error())
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// resolveResponse flattens the snapshot next to success.
type resolveResponse struct {
	Success bool `json:"success"`
	domain.ResolutionSnapshot
}

// ResolveMarket settles a market with an admin-signed request. The path id
// wins; a body marketId that disagrees is rejected.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req domain.ResolutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if req.MarketID != "" && req.MarketID != id {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "marketId does not match path")
		return
	}
	req.MarketID = id

	snap, err := h.resolutions.ResolveMarket(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Success: true, ResolutionSnapshot: snap})
}

// GetResolution returns the archived resolution document.
// GET /api/markets/{id}/resolution
func (h *MarketHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	data, err := h.resolutions.Archived(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get resolution", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
