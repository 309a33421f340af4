package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/metrics"
	"github.com/alanyoungcy/livebet/internal/server/handler"
	"github.com/alanyoungcy/livebet/internal/server/ws"
	"github.com/alanyoungcy/livebet/internal/service"
	"github.com/alanyoungcy/livebet/internal/store/memory"
	"github.com/alanyoungcy/livebet/internal/x402"
)

const (
	payee  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	apiKey = "operator-key"
)

// chainWallet pretends to submit transfers.
type chainWallet struct {
	mu   sync.Mutex
	to   []common.Address
	wei  []*big.Int
	hash common.Hash
}

func (w *chainWallet) SendPayment(_ context.Context, to common.Address, wei *big.Int) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.to = append(w.to, to)
	w.wei = append(w.wei, wei)
	return w.hash, nil
}

type env struct {
	ts      *httptest.Server
	markets *memory.MarketStore
	bus     *memory.SignalBus
	admin   *crypto.Signer
	metrics *metrics.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	e := &env{
		markets: memory.NewMarketStore(),
		bus:     memory.NewSignalBus(),
		admin:   crypto.NewSignerFromKey(key),
		metrics: metrics.New(),
	}
	positions := memory.NewPositionStore(e.markets)
	audit := memory.NewAuditStore()
	blobs := memory.NewBlobStore()
	sinks := service.Sinks{Audit: audit, Bus: e.bus, Blobs: blobs, Metrics: e.metrics}

	admins, err := crypto.NewAddressSet([]string{e.admin.Address().Hex()})
	require.NoError(t, err)
	qs, err := crypto.NewQuoteSigner("server-test-secret-0123456789")
	require.NoError(t, err)

	markets := service.NewMarketService(e.markets, nil, sinks, logger)
	resolutions := service.NewResolutionService(e.markets, positions, nil, memory.NewLockManager(),
		service.ResolutionConfig{Admins: admins, RequireBoundMessage: true}, sinks, logger).WithArchiveReader(blobs)
	bets := service.NewBetService(e.markets, positions, memory.NewQuoteStore(), nil, qs, nil, service.BettingConfig{
		MinStake:         decimal.RequireFromString("0.01"),
		MaxStake:         decimal.RequireFromString("100"),
		ChallengeEnabled: true,
		PayeeAddress:     payee,
		QuoteTTL:         time.Minute,
	}, sinks, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(e.bus, nil, nil, logger)
	require.NoError(t, hub.Start(ctx))

	srv := NewServer(Config{APIKey: apiKey, RateLimit: 1000}, Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		Markets: handler.NewMarketHandler(markets, resolutions, logger),
		Bets:    handler.NewBetHandler(bets, logger),
		Audit:   handler.NewAuditHandler(audit, logger),
		Metrics: e.metrics.Handler(),
	}, Deps{Hub: hub, Limiter: memory.NewRateLimiter(), Observer: e.metrics}, logger)

	e.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(e.ts.Close)
	return e
}

func (e *env) post(t *testing.T, path string, body any, key string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestOperatorRoutesRequireAPIKey(t *testing.T) {
	e := newEnv(t)
	market := map[string]string{"id": "m1", "question": "Will the away side score?"}

	resp := e.post(t, "/api/markets", market, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.post(t, "/api/markets", market, apiKey)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := http.Get(e.ts.URL + "/api/admin/audit")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(e.ts.URL + "/api/markets/m1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are public")
}

func TestPaymentCycleEndToEnd(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.post(t, "/api/markets", map[string]string{"id": "m1", "question": "q"}, apiKey).StatusCode)

	wallet := &chainWallet{hash: common.HexToHash("0x01")}
	client := x402.NewClient(x402.Config{}, wallet, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := client.Pay(context.Background(), e.ts.URL+"/api/bets", domain.BetIntent{
		MarketID: "m1",
		Outcome:  domain.OutcomeYes,
		Sport:    "football",
		Stake:    decimal.RequireFromString("0.25"),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.QuoteID)
	assert.NotEmpty(t, res.PositionID)
	assert.Equal(t, wallet.hash.Hex(), res.TxHash)

	require.Len(t, wallet.to, 1, "exactly one transfer")
	assert.Equal(t, common.HexToAddress(payee), wallet.to[0])
	want, _ := new(big.Int).SetString("250000000000000000", 10)
	assert.Equal(t, want, wallet.wei[0])

	m, err := e.markets.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "0.25", m.YesPool.String())
	assert.Equal(t, int64(1), m.TotalBets)
}

func TestResolveAliasRouteAndArchive(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.post(t, "/api/markets", map[string]string{"id": "m1", "question": "q"}, apiKey).StatusCode)

	msg := domain.ResolutionMessage("m1", domain.OutcomeNo, time.Now().Add(time.Minute), "n1")
	sig, err := e.admin.SignMessage(msg)
	require.NoError(t, err)
	req := domain.ResolutionRequest{Winner: "NO", Signature: sig, Message: msg, AdminAddress: e.admin.Address().Hex()}

	resp := e.post(t, "/markets/m1/resolve", req, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "NO", body["winner"])

	resp = e.post(t, "/api/markets/m1/resolve", req, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	got, err := http.Get(e.ts.URL + "/api/markets/m1/resolution")
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	archived, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Contains(t, string(archived), `"m1"`)
}

func TestWebsocketReceivesResolution(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.post(t, "/api/markets", map[string]string{"id": "m1", "question": "q"}, apiKey).StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	assert.Equal(t, "hello", read()["type"])

	msg := domain.ResolutionMessage("m1", domain.OutcomeYes, time.Now().Add(time.Minute), "n2")
	sig, err := e.admin.SignMessage(msg)
	require.NoError(t, err)
	resp := e.post(t, "/api/markets/m1/resolve", domain.ResolutionRequest{
		MarketID: "m1", Winner: "YES", Signature: sig, Message: msg, AdminAddress: e.admin.Address().Hex(),
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	update := read()
	assert.Equal(t, domain.ChannelMarkets, update["channel"])
	inner, ok := update["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.EventMarketResolved, inner["type"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.ts.URL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "livebet_http_request_duration_seconds")
}
