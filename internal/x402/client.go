package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// Wallet submits a single native-value transfer and returns its hash. A user
// rejection or node failure is returned as an error.
type Wallet interface {
	SendPayment(ctx context.Context, to common.Address, wei *big.Int) (common.Hash, error)
}

// MinedWaiter is implemented by wallets that can wait for a sent transfer to
// be mined. Pay uses it before confirming so a server that verifies payments
// on chain finds the receipt.
type MinedWaiter interface {
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// DefaultConfirmPath is resolved against the bet endpoint when no confirm
// URL is configured.
const DefaultConfirmPath = "/api/payments/confirm"

// Config controls a Client.
type Config struct {
	// ConfirmURL is the payment confirmation endpoint. When empty it is
	// derived from the bet endpoint and DefaultConfirmPath.
	ConfirmURL string
	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration
	// WalletTimeout bounds the wallet prompt and transaction submission, and
	// separately the wait for the transfer to be mined.
	WalletTimeout time.Duration
	// Decimals is the number of decimals of the payment asset.
	Decimals int32
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.WalletTimeout <= 0 {
		c.WalletTimeout = 2 * time.Minute
	}
	if c.Decimals == 0 {
		c.Decimals = 18
	}
	return c
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client runs the 402 payment cycle against a betting API.
type Client struct {
	cfg        Config
	wallet     Wallet
	httpClient *http.Client
	inflight   *inFlight
	logger     *slog.Logger
}

// NewClient creates a Client. wallet may be nil, in which case any payment
// challenge fails with KindWalletUnavailable.
func NewClient(cfg Config, wallet Wallet, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg.withDefaults(),
		wallet:     wallet,
		httpClient: &http.Client{},
		inflight:   newInFlight(),
		logger:     logger.With(slog.String("component", "x402")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Pay POSTs intent to endpoint. An OK response is returned as is. A 402
// response is answered with exactly one transfer to the challenge address,
// then confirmed with the server. Any failure is a *PayError.
//
// Pay never retries. Calling it again with the same intent after it returned
// starts a new cycle; calling it concurrently with the same intent is
// refused with KindInFlight.
func (c *Client) Pay(ctx context.Context, endpoint string, intent domain.BetIntent) (*domain.PayResult, error) {
	key := intentKey(endpoint, intent)
	if since, ok := c.inflight.acquire(key); !ok {
		return nil, &PayError{
			Kind:   KindInFlight,
			Phase:  PhaseRequest,
			Detail: fmt.Sprintf("identical payment running since %s", since.Format(time.RFC3339)),
		}
	}
	defer c.inflight.release(key)

	body, err := json.Marshal(intent)
	if err != nil {
		return nil, &PayError{Kind: KindRequestFailed, Phase: PhaseRequest, Err: fmt.Errorf("encode intent: %w", err)}
	}

	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, c.transportError(ctx, PhaseRequest, err, "", "")
	}

	switch {
	case resp.status == http.StatusPaymentRequired:
		return c.settle(ctx, endpoint, intent, resp)
	case resp.status >= 200 && resp.status < 300 && resp.explicitFailure():
		return nil, &PayError{
			Kind:   KindRequestFailed,
			Phase:  PhaseRequest,
			Status: resp.status,
			Detail: resp.detail(),
		}
	case resp.status >= 200 && resp.status < 300:
		c.logger.Debug("x402: no payment required",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.status),
		)
		return resultFrom("", "", resp.fields), nil
	default:
		return nil, &PayError{
			Kind:   KindRequestFailed,
			Phase:  PhaseRequest,
			Status: resp.status,
			Detail: resp.detail(),
		}
	}
}

// settle answers a 402 challenge: parse, pay once, confirm.
func (c *Client) settle(ctx context.Context, endpoint string, intent domain.BetIntent, first *response) (*domain.PayResult, error) {
	challenge, err := ParseChallenge(first.header)
	if err != nil {
		return nil, err
	}

	amount, err := ResolveAmount(challenge.Amount, intent.Stake)
	if err != nil {
		return nil, &PayError{Kind: KindInvalidAmount, Phase: PhaseChallenge, QuoteID: challenge.QuoteID, Err: err}
	}
	wei, err := ToBaseUnits(amount, c.cfg.Decimals)
	if err != nil {
		return nil, &PayError{Kind: KindInvalidAmount, Phase: PhaseChallenge, QuoteID: challenge.QuoteID, Err: err}
	}

	if c.wallet == nil {
		return nil, &PayError{Kind: KindWalletUnavailable, Phase: PhaseWallet, QuoteID: challenge.QuoteID}
	}

	txHash, err := c.sendOnce(ctx, common.HexToAddress(challenge.PayeeAddress), wei)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			pe := c.transportError(ctx, PhaseWallet, err, challenge.QuoteID, "")
			pe.uncertain = true
			return nil, pe
		}
		return nil, &PayError{Kind: KindTransactionFailed, Phase: PhaseWallet, QuoteID: challenge.QuoteID, Err: err}
	}

	hash := txHash.Hex()
	c.logger.Info("x402: payment sent",
		slog.String("quote_id", challenge.QuoteID),
		slog.String("payee", challenge.PayeeAddress),
		slog.String("amount", amount.String()),
		slog.String("tx_hash", hash),
	)

	if err := c.awaitMined(ctx, txHash); err != nil {
		return nil, &PayError{Kind: KindTransactionFailed, Phase: PhaseWallet, QuoteID: challenge.QuoteID, TxHash: hash, Err: err}
	}

	confirmURL, err := c.confirmURL(endpoint)
	if err != nil {
		return nil, &PayError{Kind: KindConfirmationFailed, Phase: PhaseConfirm, QuoteID: challenge.QuoteID, TxHash: hash, Err: err}
	}

	payload, _ := json.Marshal(confirmRequest{QuoteID: challenge.QuoteID, TxHash: hash})
	resp, err := c.post(ctx, confirmURL, payload)
	if err != nil {
		return nil, c.transportError(ctx, PhaseConfirm, err, challenge.QuoteID, hash)
	}
	if resp.status < 200 || resp.status >= 300 || resp.explicitFailure() {
		c.logger.Error("x402: confirmation failed after payment",
			slog.String("quote_id", challenge.QuoteID),
			slog.String("tx_hash", hash),
			slog.Int("status", resp.status),
			slog.String("detail", resp.detail()),
		)
		return nil, &PayError{
			Kind:    KindConfirmationFailed,
			Phase:   PhaseConfirm,
			Status:  resp.status,
			Detail:  resp.detail(),
			QuoteID: challenge.QuoteID,
			TxHash:  hash,
		}
	}

	return resultFrom(challenge.QuoteID, hash, resp.fields), nil
}

// sendOnce submits the transfer under the wallet timeout.
func (c *Client) sendOnce(ctx context.Context, to common.Address, wei *big.Int) (common.Hash, error) {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WalletTimeout)
	defer cancel()
	return c.wallet.SendPayment(wctx, to, wei)
}

// awaitMined waits, under the wallet timeout, for the transfer to be mined
// when the wallet supports it. Only a mined transfer that reverted is an
// error; a receipt that does not show up in time still goes on to confirm.
func (c *Client) awaitMined(ctx context.Context, hash common.Hash) error {
	w, ok := c.wallet.(MinedWaiter)
	if !ok {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WalletTimeout)
	defer cancel()

	receipt, err := w.WaitMined(wctx, hash)
	if err != nil {
		c.logger.Warn("x402: receipt not seen, confirming anyway",
			slog.String("tx_hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", hash.Hex())
	}
	return nil
}

func (c *Client) confirmURL(endpoint string) (string, error) {
	if c.cfg.ConfirmURL != "" {
		return c.cfg.ConfirmURL, nil
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(&url.URL{Path: DefaultConfirmPath}).String(), nil
}

// transportError maps a failed HTTP or wallet call to Timeout or the phase's
// failure kind.
func (c *Client) transportError(ctx context.Context, phase Phase, err error, quoteID, txHash string) *PayError {
	kind := KindRequestFailed
	if phase == PhaseConfirm {
		kind = KindConfirmationFailed
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.Canceled) {
		kind = KindTimeout
	}
	return &PayError{Kind: kind, Phase: phase, QuoteID: quoteID, TxHash: txHash, Err: err}
}

type confirmRequest struct {
	QuoteID string `json:"quote_id"`
	TxHash  string `json:"tx_hash,omitempty"`
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	raw    []byte
	fields map[string]any
}

// post sends a JSON POST bounded by the request timeout.
func (c *Client) post(ctx context.Context, target string, body []byte) (*response, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &response{status: resp.StatusCode, header: resp.Header, raw: raw}
	if len(bytes.TrimSpace(raw)) > 0 {
		// Non-object bodies are kept only as raw text for error detail.
		_ = json.Unmarshal(raw, &out.fields)
	}
	return out, nil
}

// detail returns the server's human-readable error, if any.
func (r *response) detail() string {
	for _, k := range []string{"error", "detail", "message"} {
		if v, ok := r.fields[k].(string); ok && v != "" {
			return v
		}
	}
	text := strings.TrimSpace(string(r.raw))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return http.StatusText(r.status)
	}
	return text
}

// explicitFailure reports a 2xx body that still says success:false.
func (r *response) explicitFailure() bool {
	v, ok := r.fields["success"].(bool)
	return ok && !v
}

// resultFrom builds the typed result: the fixed core plus every other field
// the server returned.
func resultFrom(quoteID, txHash string, fields map[string]any) *domain.PayResult {
	res := &domain.PayResult{Success: true, QuoteID: quoteID, TxHash: txHash}
	if len(fields) > 0 {
		res.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		switch k {
		case "success":
			continue
		case "positionId", "position_id":
			if s, ok := v.(string); ok {
				res.PositionID = s
				continue
			}
		case "quoteId", "quote_id":
			if s, ok := v.(string); ok && res.QuoteID == "" {
				res.QuoteID = s
				continue
			}
		}
		res.Extra[k] = v
	}
	return res
}
