package contract

import (
	"testing"

	"github.com/xraph/journal/event"
)

func validEnvelope() *Envelope {
	return &Envelope{
		ContractVersion: "1.1",
		Source:          SourceTaskModule,
		SourceEventID:   "se-1",
		TenantID:        "tn-1",
		Type:            event.TypeCostIncurred,
		Amount:          "100.50",
		Currency:        "RUB",
	}
}

func TestEnvelopeValidate(t *testing.T) {
	if err := validEnvelope().Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"missing contractVersion", func(e *Envelope) { e.ContractVersion = "" }},
		{"missing source", func(e *Envelope) { e.Source = "" }},
		{"missing sourceEventId", func(e *Envelope) { e.SourceEventID = "" }},
		{"missing tenantId", func(e *Envelope) { e.TenantID = "" }},
		{"missing type", func(e *Envelope) { e.Type = "" }},
		{"missing amount", func(e *Envelope) { e.Amount = "" }},
		{"missing currency", func(e *Envelope) { e.Currency = "" }},
		{"unknown source", func(e *Envelope) { e.Source = "ROGUE_MODULE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEnvelope()
			tt.mutate(e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsVersionSupported(t *testing.T) {
	for _, v := range SupportedVersions() {
		if !IsVersionSupported(v) {
			t.Errorf("version %s should be supported", v)
		}
	}
	for _, v := range []string{"0.9", "2.0", ""} {
		if IsVersionSupported(v) {
			t.Errorf("version %q should not be supported", v)
		}
	}
}

func TestIsIntegrationSource(t *testing.T) {
	for _, s := range []string{SourceTaskModule, SourceHRModule, SourceConsultingOrchestrator} {
		if !IsIntegrationSource(s) {
			t.Errorf("source %s should be known", s)
		}
	}
	if IsIntegrationSource("SOMETHING") {
		t.Error("unknown source accepted")
	}
}
