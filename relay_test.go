package journal_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/journal"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/store/memory"
)

type captureBroker struct {
	mu        sync.Mutex
	published []*outbox.Message
	err       error
}

func (b *captureBroker) Publish(_ context.Context, msg *outbox.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, msg)
	return nil
}

func TestDrainDeliversToSubscriberAndBroker(t *testing.T) {
	broker := &captureBroker{}
	j := newEngine(t, journal.WithBrokerPublisher(broker))
	ctx := context.Background()

	var received []*outbox.Message
	j.Subscribe(outbox.EventEconomicEventCreated, func(_ context.Context, msg *outbox.Message) error {
		received = append(received, msg)
		return nil
	})

	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 10, Currency: "RUB", TenantID: "tn-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if n := j.DrainOutbox(ctx); n != 1 {
		t.Fatalf("DrainOutbox() = %d, want 1", n)
	}

	if len(received) != 1 {
		t.Fatalf("subscriber received %d messages, want 1", len(received))
	}
	msg := received[0]
	if msg.EventType != outbox.EventEconomicEventCreated {
		t.Errorf("EventType = %s", msg.EventType)
	}
	if msg.TenantID() != "tn-1" {
		t.Errorf("payload tenantId = %q, want tn-1", msg.TenantID())
	}
	if got, _ := msg.Payload["eventId"].(string); got != evt.ID.String() {
		t.Errorf("payload eventId = %q, want %s", got, evt.ID)
	}

	broker.mu.Lock()
	brokered := len(broker.published)
	broker.mu.Unlock()
	if brokered != 1 {
		t.Errorf("broker published %d messages, want 1", brokered)
	}

	stats, err := j.OutboxHealth(ctx)
	if err != nil {
		t.Fatalf("OutboxHealth() error = %v", err)
	}
	if stats.Processed != 1 || stats.Pending != 0 {
		t.Errorf("stats = %+v, want 1 processed, 0 pending", stats)
	}
}

func TestDrainDeadLettersOnSubscriberError(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	j.Subscribe(outbox.EventEconomicEventCreated, func(_ context.Context, _ *outbox.Message) error {
		return errors.New("consumer down")
	})

	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 10, Currency: "RUB", TenantID: "tn-1",
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if n := j.DrainOutbox(ctx); n != 1 {
		t.Fatalf("DrainOutbox() = %d, want 1", n)
	}

	stats, err := j.OutboxHealth(ctx)
	if err != nil {
		t.Fatalf("OutboxHealth() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", stats.Failed)
	}

	// Dead-letter semantics: failed messages are never re-claimed.
	if n := j.DrainOutbox(ctx); n != 0 {
		t.Errorf("second DrainOutbox() = %d, want 0", n)
	}
	stats, _ = j.OutboxHealth(ctx)
	if stats.Failed != 1 || stats.Processed != 0 {
		t.Errorf("stats after redrain = %+v", stats)
	}
}

func TestDrainRejectsFutureEventVersion(t *testing.T) {
	s := memory.New()
	j := journal.New(s, journal.WithLogger(discardLogger()))
	ctx := context.Background()

	msg, err := outbox.NewMessage("agg-1", "economic_event", outbox.EventEconomicEventCreated,
		map[string]any{outbox.PayloadTenantKey: "tn-1"}, nil)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	msg.EventVersion = outbox.VersionFor(outbox.EventEconomicEventCreated) + 1
	if err := s.EnqueueOutbox(ctx, msg); err != nil {
		t.Fatalf("EnqueueOutbox() error = %v", err)
	}

	j.DrainOutbox(ctx)

	stats, err := j.OutboxHealth(ctx)
	if err != nil {
		t.Fatalf("OutboxHealth() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}
}

func TestDrainHonorsBatchSize(t *testing.T) {
	j := newEngine(t, journal.WithRelayConfig(3, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := j.Ingest(ctx, journal.IngestInput{
			Type: event.TypeCostIncurred, Amount: float64(i + 1), Currency: "RUB", TenantID: "tn-1",
		}); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	if n := j.DrainOutbox(ctx); n != 3 {
		t.Errorf("first drain = %d, want 3", n)
	}
	if n := j.DrainOutbox(ctx); n != 2 {
		t.Errorf("second drain = %d, want 2", n)
	}
}
