package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/outbox"
)

// Publisher delivers outbox messages to an external broker.
type Publisher interface {
	Publish(ctx context.Context, msg *outbox.Message) error
}

// Subscriber is an in-process consumer of relayed outbox messages.
type Subscriber func(ctx context.Context, msg *outbox.Message) error

// Subscribe registers a local consumer for an outbox event type.
// Subscribers run synchronously inside the relay loop; a subscriber
// error fails the message.
func (e *Engine) Subscribe(eventType string, fn Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers[eventType] = append(e.subscribers[eventType], fn)
}

// relayWorker drains the outbox on a fixed interval.
func (e *Engine) relayWorker(ctx context.Context) {
	defer e.wg.Done()

	interval := e.relayInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final drain so messages enqueued during shutdown leave.
			e.DrainOutbox(ctx)
			return

		case <-ticker.C:
			e.DrainOutbox(ctx)
		}
	}
}

// DrainOutbox claims one batch of pending outbox messages and delivers
// them. Returns how many messages were processed (delivered or failed).
// Delivery failures mark the message FAILED permanently; redelivery is
// an operator decision, not an automatic retry.
func (e *Engine) DrainOutbox(ctx context.Context) int {
	start := time.Now()

	msgs, err := e.store.ClaimOutboxBatch(ctx, e.relayBatchSize)
	if err != nil {
		e.logger.Error("outbox claim failed", "error", err)
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}

	for _, msg := range msgs {
		if err := e.deliver(ctx, msg); err != nil {
			e.failMessage(ctx, msg, err)
			continue
		}
		if err := e.store.MarkOutboxProcessed(ctx, msg.ID); err != nil {
			e.logger.Error("outbox mark processed failed",
				"message_id", msg.ID,
				"error", err,
			)
			continue
		}
		e.plugins.EmitOutboxDelivered(ctx, msg)
	}

	elapsed := time.Since(start)
	e.plugins.EmitOutboxDrained(ctx, len(msgs), elapsed)
	e.logger.Debug("outbox batch drained",
		"batch_size", len(msgs),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return len(msgs)
}

// deliver dispatches one claimed message to local subscribers and the
// broker, after re-checking its scope and schema version.
func (e *Engine) deliver(ctx context.Context, msg *outbox.Message) error {
	if msg.TenantID() == "" && !msg.SystemScoped() {
		e.invariants.IncrementFor(invariant.KindTenantIsolation, "", msg.EventType)
		return fmt.Errorf("%w: outbox message %s", ErrTenantIsolation, msg.ID)
	}
	if !outbox.VersionAllowed(msg.EventType, msg.EventVersion) {
		return fmt.Errorf("outbox message %s: unsupported event version %d for %s",
			msg.ID, msg.EventVersion, msg.EventType)
	}

	e.subMu.RLock()
	subs := e.subscribers[msg.EventType]
	e.subMu.RUnlock()

	for _, fn := range subs {
		if err := fn(ctx, msg); err != nil {
			return fmt.Errorf("subscriber for %s: %w", msg.EventType, err)
		}
	}

	if e.broker != nil {
		if err := e.broker.Publish(ctx, msg); err != nil {
			return fmt.Errorf("broker publish: %w", err)
		}
	}
	return nil
}

// failMessage dead-letters a message after a delivery error.
func (e *Engine) failMessage(ctx context.Context, msg *outbox.Message, deliveryErr error) {
	if err := e.store.MarkOutboxFailed(ctx, msg.ID, deliveryErr.Error()); err != nil {
		e.logger.Error("outbox mark failed failed",
			"message_id", msg.ID,
			"error", err,
		)
	}
	e.plugins.EmitOutboxFailed(ctx, msg, deliveryErr)
	e.logger.Warn("outbox message dead-lettered",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"error", deliveryErr.Error(),
	)
}
