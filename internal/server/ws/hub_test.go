package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/store/memory"
)

func startHub(t *testing.T) (*Hub, *memory.SignalBus, *websocket.Conn) {
	t.Helper()
	bus := memory.NewSignalBus()
	hub := NewHub(bus, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, hub.Start(ctx))

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello := readEnvelope(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.ElementsMatch(t, DefaultChannels, hello.Channels)
	return hub, bus, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysBusMessages(t *testing.T) {
	_, bus, conn := startHub(t)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelMarkets, []byte(`{"type":"market_resolved","data":{"marketId":"m1"}}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, "update", env.Type)
	assert.Equal(t, domain.ChannelMarkets, env.Channel)
	assert.Contains(t, string(env.Message), "market_resolved")
}

func TestHubUnsubscribe(t *testing.T) {
	hub, bus, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(controlMsg{Action: "unsubscribe", Channels: []string{domain.ChannelBets}}))

	// Wait until the control message is applied.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.subscribed(domain.ChannelBets) {
				return false
			}
		}
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.ChannelBets, []byte(`{"type":"bet_placed"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelMarkets, []byte(`{"type":"market_resolved"}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelMarkets, env.Channel)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://livebet.example"})

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(r), "no origin header")

	r.Header.Set("Origin", "https://LIVEBET.example")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker(nil)(r))
}
