package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"pixelmint/internal/bus"
	"pixelmint/internal/model"
	"pixelmint/internal/service"
)

// Handler subscribes to the provider completion subject and delegates to
// the generation service. Providers that speak NATS instead of HTTP land
// on the same Complete path.
type Handler struct {
	svc  service.GenerationService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.GenerationService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes and blocks until ctx is cancelled. QueueSubscribe keeps
// delivery to one instance per callback when multiple copies run.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(bus.TopicCompletions, "completion_group", func(m *nats.Msg) {
		var notice model.CompletionNotice
		if err := json.Unmarshal(m.Data, &notice); err != nil {
			slog.Error("nats: failed to unmarshal completion", "error", err)
			return
		}
		if err := h.svc.Complete(ctx, notice); err != nil {
			slog.Error("nats: completion failed",
				"tracking_ref", notice.TrackingRef, "error", err)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS completion handler is running")

	<-ctx.Done()
	slog.Info("NATS completion handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
