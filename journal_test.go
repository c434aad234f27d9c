package journal_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/journal"
	"github.com/xraph/journal/contract"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/invariant"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/store/memory"
	"github.com/xraph/journal/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, opts ...journal.Option) *journal.Engine {
	t.Helper()
	base := []journal.Option{
		journal.WithLogger(discardLogger()),
		journal.WithCurrencyScale("RUB", 4),
	}
	return journal.New(memory.New(), append(base, opts...)...)
}

func TestIngestDerivesBalancedPostings(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type:       event.TypeCostIncurred,
		AmountText: "12.345678",
		Currency:   "RUB",
		TenantID:   "tn-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// Half-up normalization to the configured 4-decimal scale.
	if got := evt.Amount.Format(); got != "12.3457" {
		t.Errorf("Amount = %s, want 12.3457", got)
	}
	if evt.Metadata.String(event.MetaJournalPhase) != "ACCRUAL" {
		t.Errorf("journalPhase = %q, want ACCRUAL", evt.Metadata.String(event.MetaJournalPhase))
	}

	postings, err := j.Postings(ctx, "tn-1", evt.ID)
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("postings = %d, want 2", len(postings))
	}

	byDirection := map[posting.Direction]string{}
	for _, p := range postings {
		byDirection[p.Direction] = p.AccountCode
		if !p.IsImmutable {
			t.Errorf("posting %s not immutable", p.ID)
		}
		if got := p.Amount.Format(); got != "12.3457" {
			t.Errorf("posting amount = %s, want 12.3457", got)
		}
	}
	if byDirection[posting.Debit] != posting.AccountOperationalExpense {
		t.Errorf("debit account = %s, want OPERATIONAL_EXPENSE", byDirection[posting.Debit])
	}
	if byDirection[posting.Credit] != posting.AccountAccountsPayable {
		t.Errorf("credit account = %s, want ACCOUNTS_PAYABLE", byDirection[posting.Credit])
	}
}

func TestIngestIdempotentReplay(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	in := journal.IngestInput{
		Type:     event.TypeRevenueRecognized,
		Amount:   500,
		Currency: "RUB",
		TenantID: "tn-1",
		Metadata: event.Metadata{event.MetaIdempotencyKey: "rev-42"},
	}

	first, err := j.Ingest(ctx, in)
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if first.ReplayKey != "idem:rev-42" {
		t.Errorf("ReplayKey = %q, want idem:rev-42", first.ReplayKey)
	}

	second, err := j.Ingest(ctx, in)
	if err != nil {
		t.Fatalf("replay Ingest() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay returned %s, want %s", second.ID, first.ID)
	}

	// Exactly one posting set exists.
	postings, err := j.Postings(ctx, "tn-1", first.ID)
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if len(postings) != 2 {
		t.Errorf("postings = %d, want 2", len(postings))
	}
	if got := j.InvariantSnapshot()[invariant.KindDuplicatePrevented]; got != 1 {
		t.Errorf("duplicates prevented = %d, want 1", got)
	}
}

func TestIngestRequiresIdempotencyWhenConfigured(t *testing.T) {
	j := newEngine(t, journal.WithRequireIdempotency(true))
	ctx := context.Background()

	_, err := j.Ingest(ctx, journal.IngestInput{
		Type:     event.TypeCostIncurred,
		Amount:   10,
		Currency: "RUB",
		TenantID: "tn-1",
	})
	if !errors.Is(err, journal.ErrIdempotencyRequired) {
		t.Fatalf("error = %v, want ErrIdempotencyRequired", err)
	}

	// An explicit key satisfies the requirement.
	_, err = j.Ingest(ctx, journal.IngestInput{
		Type:     event.TypeCostIncurred,
		Amount:   10,
		Currency: "RUB",
		TenantID: "tn-1",
		Metadata: event.Metadata{event.MetaIdempotencyKey: "k-1"},
	})
	if err != nil {
		t.Fatalf("Ingest() with key error = %v", err)
	}
}

func TestIngestContractModes(t *testing.T) {
	ctx := context.Background()
	md := event.Metadata{
		event.MetaSource:      contract.SourceTaskModule,
		event.MetaContractVer: "0.9",
		event.MetaTraceID:     "tr-1",
	}

	strict := newEngine(t, journal.WithContractMode(journal.ContractStrict))
	_, err := strict.Ingest(ctx, journal.IngestInput{
		Type:     event.TypeCostIncurred,
		Amount:   10,
		Currency: "RUB",
		TenantID: "tn-1",
		Metadata: md,
	})
	if !errors.Is(err, journal.ErrContractIncompatible) {
		t.Fatalf("strict mode error = %v, want ErrContractIncompatible", err)
	}

	lenient := newEngine(t)
	if _, err := lenient.Ingest(ctx, journal.IngestInput{
		Type:     event.TypeCostIncurred,
		Amount:   10,
		Currency: "RUB",
		TenantID: "tn-1",
		Metadata: md.Clone(),
	}); err != nil {
		t.Fatalf("lenient mode error = %v", err)
	}
}

func TestIngestNegativeAdjustment(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type:       event.TypeAdjustment,
		AmountText: "-100",
		Currency:   "RUB",
		TenantID:   "tn-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	postings, err := j.Postings(ctx, "tn-1", evt.ID)
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("postings = %d, want 2", len(postings))
	}
	for _, p := range postings {
		if p.Amount.IsNegative() {
			t.Errorf("posting magnitude negative: %s", p.Amount)
		}
		switch p.Direction {
		case posting.Debit:
			if p.AccountCode != posting.AccountEquityReserve {
				t.Errorf("debit account = %s, want EQUITY_RESERVE", p.AccountCode)
			}
		case posting.Credit:
			if p.AccountCode != posting.AccountAdjustment {
				t.Errorf("credit account = %s, want ADJUSTMENT_ACCOUNT", p.AccountCode)
			}
		}
	}
}

func TestIngestUnknownTypeRecordsBareEvent(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type:     event.TypeOther,
		Amount:   10,
		Currency: "RUB",
		TenantID: "tn-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	n, err := j.Postings(ctx, "tn-1", evt.ID)
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	if len(n) != 0 {
		t.Errorf("postings = %d, want 0", len(n))
	}
}

func TestSolvencyViolationPanicsTenant(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	// Seed tenant A with 50 cash, then try to settle 100.
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeBootstrap, Amount: 50, Currency: "RUB", TenantID: "tn-a",
	}); err != nil {
		t.Fatalf("bootstrap error = %v", err)
	}

	_, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeObligationSettled, Amount: 100, Currency: "RUB", TenantID: "tn-a",
	})
	if !errors.Is(err, journal.ErrInsolventAccount) {
		t.Fatalf("error = %v, want ErrInsolventAccount", err)
	}

	// Tenant A dropped to READ_ONLY autonomously.
	mode, err := j.TenantMode(ctx, "tn-a")
	if err != nil {
		t.Fatalf("TenantMode() error = %v", err)
	}
	if mode != tenant.ModeReadOnly {
		t.Fatalf("mode = %s, want READ_ONLY", mode)
	}
	if got := j.InvariantSnapshot()[invariant.KindFinancialFailure]; got != 1 {
		t.Errorf("financial failures = %d, want 1", got)
	}

	// Further writes for tenant A are rejected.
	_, err = j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-a",
	})
	if !errors.Is(err, journal.ErrTenantReadOnly) {
		t.Fatalf("post-panic ingest error = %v, want ErrTenantReadOnly", err)
	}

	// Other tenants are unaffected.
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-b",
	}); err != nil {
		t.Fatalf("tenant B ingest error = %v", err)
	}

	// Operator verifies the books and resumes.
	if err := j.ResumeTenant(ctx, "tn-a", "books verified"); err != nil {
		t.Fatalf("ResumeTenant() error = %v", err)
	}
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-a",
	}); err != nil {
		t.Fatalf("post-resume ingest error = %v", err)
	}
}

func TestConcurrentIngestIsolatesFailingTenant(t *testing.T) {
	// The global gate stays off so repeated failures at one tenant
	// cannot spill over to the others.
	j := newEngine(t, journal.WithPanicThreshold(0))
	ctx := context.Background()

	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeBootstrap, Amount: 50, Currency: "RUB", TenantID: "tn-a",
	}); err != nil {
		t.Fatalf("bootstrap error = %v", err)
	}

	const perTenant = 20
	var wg sync.WaitGroup

	// Tenant A hammers insolvent settlements. The first one flips the
	// tenant to READ_ONLY; later attempts bounce off that mode.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perTenant; i++ {
			_, err := j.Ingest(ctx, journal.IngestInput{
				Type: event.TypeObligationSettled, Amount: 100, Currency: "RUB", TenantID: "tn-a",
			})
			if !errors.Is(err, journal.ErrInsolventAccount) && !errors.Is(err, journal.ErrTenantReadOnly) {
				t.Errorf("tenant A ingest error = %v, want ErrInsolventAccount or ErrTenantReadOnly", err)
			}
		}
	}()

	for _, tn := range []string{"tn-b", "tn-c"} {
		wg.Add(1)
		go func(tn string) {
			defer wg.Done()
			for i := 0; i < perTenant; i++ {
				if _, err := j.Ingest(ctx, journal.IngestInput{
					Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: tn,
				}); err != nil {
					t.Errorf("tenant %s ingest error = %v", tn, err)
				}
			}
		}(tn)
	}
	wg.Wait()

	mode, err := j.TenantMode(ctx, "tn-a")
	if err != nil {
		t.Fatalf("TenantMode(tn-a) error = %v", err)
	}
	if mode != tenant.ModeReadOnly {
		t.Errorf("tenant A mode = %s, want READ_ONLY", mode)
	}
	for _, tn := range []string{"tn-b", "tn-c"} {
		mode, err := j.TenantMode(ctx, tn)
		if err != nil {
			t.Fatalf("TenantMode(%s) error = %v", tn, err)
		}
		if mode != tenant.ModeActive {
			t.Errorf("tenant %s mode = %s, want ACTIVE", tn, mode)
		}
	}
}

func TestGlobalPanicGate(t *testing.T) {
	j := newEngine(t, journal.WithPanicThreshold(2))
	ctx := context.Background()

	// Two solvency failures across tenants trip the process-wide gate.
	for _, tn := range []string{"tn-a", "tn-b"} {
		_, err := j.Ingest(ctx, journal.IngestInput{
			Type: event.TypeObligationSettled, Amount: 100, Currency: "RUB", TenantID: tn,
		})
		if !errors.Is(err, journal.ErrInsolventAccount) {
			t.Fatalf("tenant %s error = %v, want ErrInsolventAccount", tn, err)
		}
	}

	if !j.PanicTriggered() {
		t.Fatal("PanicTriggered() = false after threshold reached")
	}
	_, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-c",
	})
	if !errors.Is(err, journal.ErrPanicActive) {
		t.Fatalf("error = %v, want ErrPanicActive", err)
	}
}

func TestHaltLifecycle(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	if err := j.HaltTenant(ctx, "tn-1", "maintenance"); err != nil {
		t.Fatalf("HaltTenant() error = %v", err)
	}

	_, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-1",
	})
	if !errors.Is(err, journal.ErrTenantHalted) {
		t.Fatalf("ingest error = %v, want ErrTenantHalted", err)
	}

	// Resume cannot lift a halt.
	err = j.ResumeTenant(ctx, "tn-1", "nope")
	if !errors.Is(err, journal.ErrIllegalTransition) {
		t.Fatalf("ResumeTenant() error = %v, want ErrIllegalTransition", err)
	}
	if got := j.InvariantSnapshot()[invariant.KindIllegalTransition]; got != 1 {
		t.Errorf("illegal transitions = %d, want 1", got)
	}

	// Only an explicit unhalt does.
	if err := j.UnhaltTenant(ctx, "tn-1", "maintenance done"); err != nil {
		t.Fatalf("UnhaltTenant() error = %v", err)
	}
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 1, Currency: "RUB", TenantID: "tn-1",
	}); err != nil {
		t.Fatalf("post-unhalt ingest error = %v", err)
	}
}

func TestHaltedTenantNotDowngradedByPanic(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	// Seed before halting so the later settle fails on solvency, not mode.
	if _, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeBootstrap, Amount: 50, Currency: "RUB", TenantID: "tn-1",
	}); err != nil {
		t.Fatalf("bootstrap error = %v", err)
	}
	if err := j.HaltTenant(ctx, "tn-1", "freeze"); err != nil {
		t.Fatalf("HaltTenant() error = %v", err)
	}

	_, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeObligationSettled, Amount: 100, Currency: "RUB", TenantID: "tn-1",
	})
	if !errors.Is(err, journal.ErrTenantHalted) {
		t.Fatalf("error = %v, want ErrTenantHalted", err)
	}

	mode, err := j.TenantMode(ctx, "tn-1")
	if err != nil {
		t.Fatalf("TenantMode() error = %v", err)
	}
	if mode != tenant.ModeHalted {
		t.Errorf("mode = %s, want HALTED (never downgraded)", mode)
	}
}

func TestIngestEnvelope(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	raw := `{
		"contractVersion": "1.0",
		"source": "TASK_MODULE",
		"sourceEventId": "task-evt-7",
		"traceId": "tr-99",
		"tenantId": "tn-1",
		"type": "COST_INCURRED",
		"amount": "12.345678",
		"currency": "RUB"
	}`
	var env contract.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	evt, err := j.IngestEnvelope(ctx, env)
	if err != nil {
		t.Fatalf("IngestEnvelope() error = %v", err)
	}
	if evt.ReplayKey != "src:task-evt-7" {
		t.Errorf("ReplayKey = %q, want src:task-evt-7", evt.ReplayKey)
	}
	if got := evt.Amount.Format(); got != "12.3457" {
		t.Errorf("Amount = %s, want 12.3457", got)
	}

	// Upstream redelivery collapses onto the stored event.
	replay, err := j.IngestEnvelope(ctx, env)
	if err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if replay.ID != evt.ID {
		t.Errorf("redelivery returned %s, want %s", replay.ID, evt.ID)
	}
}

func TestIngestEnvelopeValidation(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	_, err := j.IngestEnvelope(ctx, contract.Envelope{
		ContractVersion: "1.0",
		Source:          "UNKNOWN_MODULE",
		SourceEventID:   "x-1",
		TenantID:        "tn-1",
		Type:            event.TypeCostIncurred,
		Amount:          "10",
		Currency:        "RUB",
	})
	if !errors.Is(err, journal.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if !strings.Contains(err.Error(), "unknown source") {
		t.Errorf("error = %v, want unknown source detail", err)
	}
}

func TestIngestValidation(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   journal.IngestInput
	}{
		{"missing tenant", journal.IngestInput{Type: event.TypeCostIncurred, Amount: 1}},
		{"missing type", journal.IngestInput{TenantID: "tn-1", Amount: 1}},
		{"bad amount text", journal.IngestInput{Type: event.TypeCostIncurred, TenantID: "tn-1", AmountText: "12.x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := j.Ingest(ctx, tt.in); err == nil {
				t.Fatal("Ingest() did not fail")
			} else if !journal.IsValidation(err) {
				t.Fatalf("error %v not classified as validation", err)
			}
		})
	}
}

func TestIngestCashFields(t *testing.T) {
	j := newEngine(t)
	ctx := context.Background()

	// Declared cash impact without the projection fields aborts.
	_, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeBootstrap, Amount: 100, Currency: "RUB", TenantID: "tn-1",
		Metadata: event.Metadata{event.MetaCashImpact: true},
	})
	if !errors.Is(err, journal.ErrCashFieldsIncomplete) {
		t.Fatalf("error = %v, want ErrCashFieldsIncomplete", err)
	}

	// Complete fields land on the cash-bearing leg only.
	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeBootstrap, Amount: 100, Currency: "RUB", TenantID: "tn-1",
		Metadata: event.Metadata{
			event.MetaCashImpact:    true,
			event.MetaCashAccountID: "acct-main",
			event.MetaCashDirection: "IN",
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	postings, err := j.Postings(ctx, "tn-1", evt.ID)
	if err != nil {
		t.Fatalf("Postings() error = %v", err)
	}
	for _, p := range postings {
		if p.AccountCode == posting.AccountCash {
			if !p.CashImpact || p.CashAccountID != "acct-main" || p.CashDirection != posting.CashIn {
				t.Errorf("cash leg projection = %+v", p)
			}
		} else if p.CashImpact {
			t.Errorf("non-cash leg %s carries cash projection", p.AccountCode)
		}
	}
}

func TestDefaultCurrencyApplied(t *testing.T) {
	j := newEngine(t, journal.WithDefaultCurrency("RUB"))
	ctx := context.Background()

	evt, err := j.Ingest(ctx, journal.IngestInput{
		Type: event.TypeCostIncurred, Amount: 10, TenantID: "tn-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if evt.Currency != "RUB" {
		t.Errorf("Currency = %s, want RUB", evt.Currency)
	}
}
