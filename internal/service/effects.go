package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/metrics"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Sinks are the best-effort outputs of a state change. Every field may be
// nil. A failing sink is logged and never undoes the change that fed it.
type Sinks struct {
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Events   domain.EventPublisher
	Blobs    domain.BlobWriter
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// busMessage is what websocket clients receive.
type busMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s Sinks) audit(ctx context.Context, logger *slog.Logger, event string, detail map[string]any) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s Sinks) broadcast(ctx context.Context, logger *slog.Logger, channel, typ string, data any) {
	if s.Bus == nil {
		return
	}
	payload, err := json.Marshal(busMessage{Type: typ, Data: data})
	if err != nil {
		logger.WarnContext(ctx, "bus marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.Bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s Sinks) emit(ctx context.Context, logger *slog.Logger, evt domain.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("type", evt.Type),
			slog.String("key", evt.Key),
			slog.String("error", err.Error()),
		)
	}
}

func (s Sinks) archive(ctx context.Context, logger *slog.Logger, path string, v any) {
	if s.Blobs == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.WarnContext(ctx, "archive marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.Blobs.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		logger.WarnContext(ctx, "archive upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (s Sinks) notify(ctx context.Context, logger *slog.Logger, event, title, message string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, event, title, message); err != nil {
		logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
