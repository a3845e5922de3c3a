package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"pixelmint/internal/bus"
	"pixelmint/internal/model"
	"pixelmint/internal/service"
)

// JournalWorker listens on the credit events subject and syncs every
// balance mutation into the PostgreSQL journal.
type JournalWorker struct {
	svc      service.GenerationService
	natsConn *nats.Conn
}

func NewJournalWorker(svc service.GenerationService, nc *nats.Conn) *JournalWorker {
	return &JournalWorker{
		svc:      svc,
		natsConn: nc,
	}
}

// Run subscribes to the credit events subject and blocks until ctx is
// cancelled.
func (w *JournalWorker) Run(ctx context.Context) error {
	// QueueSubscribe: with several instances running, each event is
	// received by exactly one member of the group.
	sub, err := w.natsConn.QueueSubscribe(bus.TopicCreditEvents, "journal_group", func(m *nats.Msg) {
		var event model.CreditEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal credit event", "error", err)
			return
		}

		if err := w.svc.SyncCreditEvent(ctx, event); err != nil {
			slog.Error("worker: failed to journal credit event",
				"user_id", event.UserID,
				"admission_id", event.AdmissionID,
				"error", err,
			)
			return
		}

		slog.Info("worker: credit event journaled",
			"user_id", event.UserID,
			"admission_id", event.AdmissionID,
			"delta", event.Delta,
		)
	})

	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Credit journal worker is running")

	// Wait for shutdown signal.
	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	// Close subscription gracefully, waiting for current processing to complete.
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *JournalWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *JournalWorker) Stop(ctx context.Context) error {
	return nil
}
