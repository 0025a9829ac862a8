package events

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/erazemk/prenos/internal/metrics"
)

// RecordResolved returns a handler that logs each resolved transfer and
// counts it by status.
func RecordResolved(log *slog.Logger, m *metrics.Metrics) func(context.Context, *message.Message) error {
	return func(ctx context.Context, msg *message.Message) error {
		ev, err := DecodeTransferResolved(msg)
		if err != nil {
			// A payload that does not decode will never succeed on retry.
			log.Error("dropping malformed transfer event", "message", msg.UUID, "error", err)
			return nil
		}
		if m != nil {
			m.TransfersResolved.WithLabelValues(string(ev.Status)).Inc()
		}
		log.InfoContext(ctx, "transfer resolved",
			"transfer", ev.TransferID,
			"item", ev.ItemID,
			"status", ev.Status,
			"resolved_by", ev.ResolvedBy,
		)
		return nil
	}
}
