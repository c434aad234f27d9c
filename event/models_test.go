package event

import (
	"strings"
	"testing"
)

func TestPhaseOf(t *testing.T) {
	tests := []struct {
		eventType Type
		phase     JournalPhase
	}{
		{TypeCostIncurred, PhaseAccrual},
		{TypeRevenueRecognized, PhaseAccrual},
		{TypeObligationCreated, PhaseAccrual},
		{TypeObligationSettled, PhaseSettlement},
		{TypeReserveAllocated, PhaseSettlement},
		{TypeBootstrap, PhaseOpening},
		{TypeAdjustment, PhaseAdjustment},
		{TypeOther, PhaseUnspecified},
		{Type("SOMETHING_ELSE"), PhaseUnspecified},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := PhaseOf(tt.eventType); got != tt.phase {
				t.Errorf("PhaseOf(%s): got %s, want %s", tt.eventType, got, tt.phase)
			}
		})
	}
}

func TestEnrichStampsPhase(t *testing.T) {
	md := Enrich(TypeCostIncurred, Metadata{"foo": "bar"})
	if md.String(MetaJournalPhase) != string(PhaseAccrual) {
		t.Errorf("journalPhase: got %q", md.String(MetaJournalPhase))
	}
	if md.String("foo") != "bar" {
		t.Error("existing metadata lost")
	}
}

func TestEnrichSettlementRef(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		md        Metadata
		wantRef   string
	}{
		{
			"obligation settlement",
			TypeObligationSettled,
			Metadata{MetaObligationID: "obl-42"},
			"obligation:obl-42",
		},
		{
			"reserve allocation",
			TypeReserveAllocated,
			Metadata{MetaReserveID: "rsv-7"},
			"reserve:rsv-7",
		},
		{
			"explicit ref preserved",
			TypeObligationSettled,
			Metadata{MetaObligationID: "obl-42", MetaSettlementRef: "custom:ref"},
			"custom:ref",
		},
		{
			"accrual gets no ref",
			TypeCostIncurred,
			Metadata{MetaObligationID: "obl-42"},
			"",
		},
		{
			"settlement without correlation key",
			TypeObligationSettled,
			Metadata{},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Enrich(tt.eventType, tt.md)
			if got.String(MetaSettlementRef) != tt.wantRef {
				t.Errorf("settlementRef: got %q, want %q", got.String(MetaSettlementRef), tt.wantRef)
			}
		})
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	md := Metadata{"k": "v"}
	Enrich(TypeBootstrap, md)
	if _, ok := md[MetaJournalPhase]; ok {
		t.Error("Enrich mutated its input")
	}
}

func TestDeriveReplayKeyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{
			"explicit replay key wins",
			Metadata{
				MetaReplayKey:      "explicit",
				MetaSourceEventID:  "se-1",
				MetaIdempotencyKey: "ik-1",
			},
			"explicit",
		},
		{
			"source event id",
			Metadata{MetaSourceEventID: "se-1", MetaIdempotencyKey: "ik-1"},
			"src:se-1",
		},
		{
			"idempotency key",
			Metadata{MetaIdempotencyKey: "ik-1"},
			"idem:ik-1",
		},
		{
			"fingerprint needs source and trace",
			Metadata{MetaSource: "TASK_MODULE", MetaTraceID: "tr-1"},
			"fp:",
		},
		{
			"no identifying fields",
			Metadata{MetaSource: "TASK_MODULE"},
			"",
		},
		{
			"nil metadata",
			nil,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveReplayKey("tn-1", TypeCostIncurred, "100.0000", "RUB", tt.md)
			if tt.want == "fp:" {
				if !strings.HasPrefix(got, "fp:") || len(got) != len("fp:")+64 {
					t.Errorf("expected fp: prefixed sha256 hex, got %q", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("tn-1", TypeCostIncurred, "100.0000", "RUB", "TASK_MODULE", "tr-1")
	b := Fingerprint("tn-1", TypeCostIncurred, "100.0000", "RUB", "TASK_MODULE", "tr-1")
	if a != b {
		t.Error("equal tuples produced different fingerprints")
	}

	c := Fingerprint("tn-2", TypeCostIncurred, "100.0000", "RUB", "TASK_MODULE", "tr-1")
	if a == c {
		t.Error("different tenants produced the same fingerprint")
	}
}

func TestMetadataBool(t *testing.T) {
	md := Metadata{"a": true, "b": "true", "c": "false", "d": 1}
	if !md.Bool("a") || !md.Bool("b") {
		t.Error("expected true for bool true and string true")
	}
	if md.Bool("c") || md.Bool("d") || md.Bool("missing") {
		t.Error("expected false for non-true values")
	}
}
