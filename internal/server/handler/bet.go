package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/service"
	"github.com/alanyoungcy/livebet/internal/x402"
)

// BetService places bets and settles their payments.
type BetService interface {
	PlaceBet(ctx context.Context, intent domain.BetIntent) (service.PlaceResult, error)
	ConfirmPayment(ctx context.Context, quoteID, txHash string) (service.Confirmation, error)
}

// BetHandler serves the x402 betting endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

type challengeResponse struct {
	errorBody
	QuoteID string `json:"quoteId"`
	PayTo   string `json:"payTo"`
	Amount  string `json:"amount"`
}

type betResponse struct {
	Success    bool            `json:"success"`
	QuoteID    string          `json:"quoteId,omitempty"`
	PositionID string          `json:"positionId"`
	MarketID   string          `json:"marketId"`
	Outcome    domain.Outcome  `json:"outcome"`
	Stake      decimal.Decimal `json:"stake"`
	TxHash     string          `json:"txHash,omitempty"`
	Replayed   bool            `json:"replayed,omitempty"`
}

func positionResponse(p domain.Position) betResponse {
	return betResponse{
		Success:    true,
		QuoteID:    p.QuoteID,
		PositionID: p.ID,
		MarketID:   p.MarketID,
		Outcome:    p.Outcome,
		Stake:      p.Stake,
		TxHash:     p.TxHash,
	}
}

// PlaceBet answers 402 with a payment challenge when payment is required,
// or 201 with the recorded position when it is not.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var intent domain.BetIntent
	if err := decodeJSON(w, r, &intent); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, err.Error())
		return
	}

	res, err := h.bets.PlaceBet(r.Context(), intent)
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}

	if res.Challenge != nil {
		w.Header().Set(x402.HeaderPaymentRequired, res.PaymentHeader)
		w.Header().Set(x402.HeaderQuoteID, res.Challenge.QuoteID)
		writeJSON(w, http.StatusPaymentRequired, challengeResponse{
			errorBody: errorBody{Error: "payment required", Code: domain.CodePaymentRequired},
			QuoteID:   res.Challenge.QuoteID,
			PayTo:     res.Challenge.PayeeAddress,
			Amount:    res.Challenge.Amount,
		})
		return
	}
	writeJSON(w, http.StatusCreated, positionResponse(*res.Position))
}

// confirmRequest accepts both the snake_case body the payment client sends
// and camelCase.
type confirmRequest struct {
	QuoteID      string `json:"quote_id"`
	TxHash       string `json:"tx_hash"`
	QuoteIDCamel string `json:"quoteId"`
	TxHashCamel  string `json:"txHash"`
}

// ConfirmPayment settles a quote once its transfer was sent.
// POST /api/payments/confirm
func (h *BetHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, err.Error())
		return
	}
	quoteID := firstNonEmpty(req.QuoteID, req.QuoteIDCamel, r.Header.Get(x402.HeaderQuoteID))
	txHash := firstNonEmpty(req.TxHash, req.TxHashCamel)

	c, err := h.bets.ConfirmPayment(r.Context(), quoteID, txHash)
	if err != nil {
		writeServiceError(w, r, h.logger, "confirm payment", err)
		return
	}

	resp := positionResponse(c.Position)
	resp.QuoteID = c.Quote.ID
	resp.Replayed = c.Replayed
	writeJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
