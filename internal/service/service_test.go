package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blobRecorder captures archive uploads.
type blobRecorder struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (b *blobRecorder) Put(_ context.Context, path string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blobs == nil {
		b.blobs = make(map[string][]byte)
	}
	b.blobs[path] = buf.Bytes()
	return nil
}

func (b *blobRecorder) get(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.blobs[path]
	return v, ok
}

// eventRecorder captures published domain events.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *eventRecorder) Publish(_ context.Context, evt domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func (e *eventRecorder) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Type)
	}
	return out
}

// notifyRecorder captures operator alerts.
type notifyRecorder struct {
	mu     sync.Mutex
	events []string
}

func (n *notifyRecorder) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type backend struct {
	markets   *memory.MarketStore
	positions *memory.PositionStore
	quotes    *memory.QuoteStore
	audit     *memory.AuditStore
	locks     *memory.LockManager
	bus       *memory.SignalBus
	blobs     *blobRecorder
	events    *eventRecorder
	notes     *notifyRecorder
}

func newBackend() *backend {
	markets := memory.NewMarketStore()
	return &backend{
		markets:   markets,
		positions: memory.NewPositionStore(markets),
		quotes:    memory.NewQuoteStore(),
		audit:     memory.NewAuditStore(),
		locks:     memory.NewLockManager(),
		bus:       memory.NewSignalBus(),
		blobs:     &blobRecorder{},
		events:    &eventRecorder{},
		notes:     &notifyRecorder{},
	}
}

func (b *backend) sinks() Sinks {
	return Sinks{
		Audit:    b.audit,
		Bus:      b.bus,
		Events:   b.events,
		Blobs:    b.blobs,
		Notifier: b.notes,
	}
}

func (b *backend) openMarket(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, b.markets.Create(context.Background(), domain.Market{ID: id, Question: "q " + id, Status: domain.MarketStatusOpen}))
}

func requireCode(t *testing.T, err error, code string) *domain.CodedError {
	t.Helper()
	require.Error(t, err)
	ce, ok := domain.AsCodedError(err)
	require.True(t, ok, "not a coded error: %v", err)
	require.Equal(t, code, ce.Code, "error: %v", err)
	return ce
}
