package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/journal"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/store"
	"github.com/xraph/journal/store/memory"
	"github.com/xraph/journal/types"
)

func journalEngineOn(t *testing.T, s store.Store) *journal.Engine {
	t.Helper()
	return journal.New(s,
		journal.WithLogger(discardLogger()),
		journal.WithCurrencyScale("RUB", 2),
	)
}

// skewedStore injects unbalanced scan results the commit-time
// invariants would never let through, simulating a corrupted replica.
type skewedStore struct {
	*memory.Store
	balances []store.EventBalance
}

func (s *skewedStore) ScanEventBalances(ctx context.Context, since time.Time, limit int) ([]store.EventBalance, error) {
	if s.balances != nil {
		return s.balances, nil
	}
	return s.Store.ScanEventBalances(ctx, since, limit)
}

func TestReconciliationFlagsMissingPostings(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	// OTHER events legitimately have no postings; anything else without
	// them is an inconsistency.
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeOther, Amount: 10, Currency: "RUB", TenantID: "tn-1",
	}); err != nil {
		t.Fatalf("Ingest(OTHER) error = %v", err)
	}

	n, err := j.RunReconciliation(ctx)
	if err != nil {
		t.Fatalf("RunReconciliation() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("alerts = %d, want 0 for OTHER-only events", n)
	}
}

func TestReconciliationFlagsUnrecognizedEventWithoutPostings(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	// A type outside the enumerated set records a bare event; the
	// auditor must still surface it.
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.Type("MYSTERY_TYPE"), Amount: 10, Currency: "RUB", TenantID: "tn-1",
	}); err != nil {
		t.Fatalf("Ingest(MYSTERY_TYPE) error = %v", err)
	}

	n, err := j.RunReconciliation(ctx)
	if err != nil {
		t.Fatalf("RunReconciliation() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("alerts = %d, want 1", n)
	}
	if got := j.InvariantSnapshot()[invariant.KindReconciliationAlert]; got != 1 {
		t.Errorf("reconciliation alert counter = %d, want 1", got)
	}
}

func TestReconciliationFlagsKnownEventWithoutPostings(t *testing.T) {
	s := memory.New()
	j := journalEngineOn(t, s)
	ctx := context.Background()

	// Write an event with no posting set, the way a crashed half-ingest
	// would leave it.
	orphan := &event.EconomicEvent{
		Entity:   types.NewEntity(),
		ID:       id.NewEventID(),
		TenantID: "tn-1",
		Type:     event.TypeCostIncurred,
		Amount:   types.New(1000, "RUB", 2),
		Currency: "RUB",
	}
	err := s.InTenantTx(ctx, "tn-1", func(tx store.Tx) error {
		return tx.InsertEvent(ctx, orphan)
	})
	if err != nil {
		t.Fatalf("seed orphan event: %v", err)
	}

	n, err := j.RunReconciliation(ctx)
	if err != nil {
		t.Fatalf("RunReconciliation() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("alerts = %d, want 1", n)
	}
	if got := j.InvariantSnapshot()[invariant.KindReconciliationAlert]; got != 1 {
		t.Errorf("reconciliation alert counter = %d, want 1", got)
	}

	// The alert rides the outbox.
	if drained := j.DrainOutbox(ctx); drained != 1 {
		t.Fatalf("DrainOutbox() = %d, want 1", drained)
	}
}

func TestReconciliationFlagsDoubleEntryMismatch(t *testing.T) {
	evt := &event.EconomicEvent{
		Entity:   types.NewEntity(),
		ID:       id.NewEventID(),
		TenantID: "tn-1",
		Type:     event.TypeCostIncurred,
		Amount:   types.New(10000, "RUB", 2),
		Currency: "RUB",
	}
	s := &skewedStore{
		Store: memory.New(),
		balances: []store.EventBalance{
			{Event: evt, DebitUnits: 10000, CreditUnits: 9000},
		},
	}
	j := journalEngineOn(t, s)
	ctx := context.Background()

	var seen []*outbox.Message
	j.Subscribe(outbox.EventReconciliationAlert, func(_ context.Context, msg *outbox.Message) error {
		seen = append(seen, msg)
		return nil
	})

	n, err := j.RunReconciliation(ctx)
	if err != nil {
		t.Fatalf("RunReconciliation() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("alerts = %d, want 1", n)
	}

	if drained := j.DrainOutbox(ctx); drained != 1 {
		t.Fatalf("DrainOutbox() = %d, want 1", drained)
	}
	if len(seen) != 1 {
		t.Fatalf("subscriber saw %d alerts, want 1", len(seen))
	}
	msg := seen[0]
	if got, _ := msg.Payload["alertType"].(string); got != journal.AlertDoubleEntryMismatch {
		t.Errorf("alertType = %q, want %s", got, journal.AlertDoubleEntryMismatch)
	}
	if msg.TenantID() != "tn-1" {
		t.Errorf("payload tenantId = %q, want tn-1", msg.TenantID())
	}
	// The alert carries the computed sides at the event's scale so an
	// operator can act on it without replaying the scan.
	for key, want := range map[string]string{
		"debit":  "100.00",
		"credit": "90.00",
		"delta":  "10.00",
	} {
		if got, _ := msg.Payload[key].(string); got != want {
			t.Errorf("payload %s = %q, want %q", key, got, want)
		}
	}
}

func TestReconciliationToleratesEpsilonDrift(t *testing.T) {
	evt := &event.EconomicEvent{
		Entity:   types.NewEntity(),
		ID:       id.NewEventID(),
		TenantID: "tn-1",
		Type:     event.TypeCostIncurred,
		Amount:   types.New(1000000, "RUB", 4),
		Currency: "RUB",
	}
	// At scale 4 the default 0.0001 epsilon tolerates exactly one minor
	// unit of drift.
	s := &skewedStore{
		Store: memory.New(),
		balances: []store.EventBalance{
			{Event: evt, DebitUnits: 1000000, CreditUnits: 999999},
		},
	}
	j := journalEngineOn(t, s)

	n, err := j.RunReconciliation(context.Background())
	if err != nil {
		t.Fatalf("RunReconciliation() error = %v", err)
	}
	if n != 0 {
		t.Errorf("alerts = %d, want 0 within epsilon", n)
	}
}
