// Package events publishes transfer lifecycle events on an in-process
// Watermill bus.
//
// Delivery is at-most-once: the bus lives in memory and a message published
// while nobody is subscribed is dropped. Handlers that fail are retried with
// exponential backoff before the message is nacked.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/erazemk/prenos/internal/model"
)

const (
	maxRetries      = 3
	retryBaseDelay  = 100 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

// TopicTransferResolved is published whenever a transfer reaches a terminal
// state.
const TopicTransferResolved = "transfer.resolved"

// TransferResolvedEvent is the payload of TopicTransferResolved.
type TransferResolvedEvent struct {
	EventID                uuid.UUID            `json:"event_id"`
	Version                int                  `json:"version"`
	TransferID             int64                `json:"transfer_id"`
	ItemID                 int64                `json:"item_id"`
	SourceInventoryID      int64                `json:"source_inventory_id"`
	DestinationInventoryID int64                `json:"destination_inventory_id"`
	Status                 model.TransferStatus `json:"status"`
	RequestedBy            int64                `json:"requested_by"`
	ResolvedBy             int64                `json:"resolved_by"`
	OccurredAt             time.Time            `json:"occurred_at"`
}

// NewTransferResolved builds the event for t.
func NewTransferResolved(t model.Transfer) TransferResolvedEvent {
	ev := TransferResolvedEvent{
		EventID:                uuid.New(),
		Version:                1,
		TransferID:             t.ID,
		ItemID:                 t.ItemID,
		SourceInventoryID:      t.SourceInventoryID,
		DestinationInventoryID: t.DestinationInventoryID,
		Status:                 t.Status,
		RequestedBy:            t.RequestedBy,
		OccurredAt:             time.Now().UTC(),
	}
	if t.ResolvedBy != nil {
		ev.ResolvedBy = *t.ResolvedBy
	}
	if t.ResolvedAt != nil {
		ev.OccurredAt = *t.ResolvedAt
	}
	return ev
}

// Bus is an in-memory pub/sub bus.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates a Bus logging through log.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, &slogAdapter{log: log}),
		log:    log,
	}
}

// Publish sends messages to topic.
func (b *Bus) Publish(topic string, msgs ...*message.Message) error {
	if err := b.pubsub.Publish(topic, msgs...); err != nil {
		return fmt.Errorf("events: publish to %s: %w", topic, err)
	}
	return nil
}

// PublishTransferResolved encodes and publishes a TransferResolvedEvent.
func (b *Bus) PublishTransferResolved(ctx context.Context, t model.Transfer) error {
	ev := NewTransferResolved(t)
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode transfer event: %w", err)
	}
	msg := message.NewMessage(ev.EventID.String(), payload)
	msg.SetContext(ctx)
	return b.Publish(TopicTransferResolved, msg)
}

// TransferResolvedHook adapts the bus to the transfer service callback.
// Publish failures are logged; the transfer is already committed.
func (b *Bus) TransferResolvedHook(ctx context.Context, t model.Transfer) {
	if err := b.PublishTransferResolved(ctx, t); err != nil {
		b.log.Error("publishing transfer event", "transfer", t.ID, "error", err)
	}
}

// Subscribe processes messages from topic in the background until ctx is
// cancelled or the bus is closed. A handler error is retried; once retries
// are exhausted the message is nacked and the error is sent on the returned
// channel, which callers must drain.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe to %s: %w", topic, err)
	}

	errCh := make(chan error, 100)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(errCh)

		for msg := range ch {
			if err := retryWithBackoff(ctx, msg, handler, maxRetries, retryBaseDelay, b.log); err != nil {
				msg.Nack()
				select {
				case errCh <- err:
				default:
					b.log.Error("events: error channel full, dropping error", "error", err, "topic", topic)
				}
			} else {
				msg.Ack()
			}
		}
	}()

	return errCh, nil
}

// DecodeTransferResolved parses a TopicTransferResolved payload.
func DecodeTransferResolved(msg *message.Message) (TransferResolvedEvent, error) {
	var ev TransferResolvedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("events: decode transfer event: %w", err)
	}
	return ev, nil
}

func retryWithBackoff(
	ctx context.Context,
	msg *message.Message,
	handler func(context.Context, *message.Message) error,
	maxRetries int,
	baseDelay time.Duration,
	log *slog.Logger,
) error {
	delay := baseDelay
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt < maxRetries {
			log.Warn("events: handler failed, retrying",
				"attempt", attempt,
				"max_retries", maxRetries,
				"next_delay", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("events: handler failed after %d retries: %w", maxRetries, err)
}

// Close stops delivery and waits for in-flight handlers.
func (b *Bus) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("events: close: %w", err)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		b.log.Error("events: timed out waiting for in-flight handlers")
	}
	return nil
}

// slogAdapter bridges slog to watermill.LoggerAdapter.
type slogAdapter struct{ log *slog.Logger }

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldsToArgs(fields), "error", err)...)
}
func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}

func fieldsToArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
