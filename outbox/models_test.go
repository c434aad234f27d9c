package outbox

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("evt-1", "EconomicEvent", EventEconomicEventCreated,
		map[string]any{"tenantId": "tn-1", "amount": "100.0000"}, nil)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	if msg.Status != StatusPending {
		t.Errorf("status: got %s, want PENDING", msg.Status)
	}
	if msg.EventVersion != 1 {
		t.Errorf("version: got %d, want 1", msg.EventVersion)
	}
	if msg.TenantID() != "tn-1" {
		t.Errorf("tenant: got %q", msg.TenantID())
	}
	if msg.SystemScoped() {
		t.Error("tenant-scoped message reported system scope")
	}
	if !strings.HasPrefix(msg.ID.String(), "obx_") {
		t.Errorf("id prefix: got %q", msg.ID.String())
	}
}

func TestNewMessageRejectsUnscopedPayload(t *testing.T) {
	_, err := NewMessage("evt-1", "EconomicEvent", EventEconomicEventCreated,
		map[string]any{"amount": "100.0000"}, nil)
	if !errors.Is(err, ErrUnscopedPayload) {
		t.Fatalf("expected ErrUnscopedPayload, got %v", err)
	}

	// Empty string tenant counts as missing.
	_, err = NewMessage("evt-1", "EconomicEvent", EventEconomicEventCreated,
		map[string]any{"tenantId": ""}, nil)
	if !errors.Is(err, ErrUnscopedPayload) {
		t.Fatalf("expected ErrUnscopedPayload for empty tenant, got %v", err)
	}
}

func TestNewMessageSystemScope(t *testing.T) {
	msg, err := NewMessage("sys-1", "System", "finance.maintenance.tick",
		map[string]any{"detail": "x"}, &Options{AllowSystemScope: true})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if !msg.SystemScoped() {
		t.Error("expected systemScope stamp")
	}
	if msg.TenantID() != "" {
		t.Errorf("tenant: got %q, want empty", msg.TenantID())
	}
}

func TestNewMessageDoesNotMutateInput(t *testing.T) {
	payload := map[string]any{"detail": "x"}
	_, err := NewMessage("sys-1", "System", "finance.maintenance.tick", payload,
		&Options{AllowSystemScope: true})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if _, ok := payload[PayloadSystemScopeKey]; ok {
		t.Error("NewMessage mutated caller payload")
	}
}

func TestNewMessageRequiredFields(t *testing.T) {
	if _, err := NewMessage("", "EconomicEvent", "t", map[string]any{"tenantId": "tn"}, nil); err == nil {
		t.Error("expected error for missing aggregate id")
	}
	if _, err := NewMessage("a", "", "t", map[string]any{"tenantId": "tn"}, nil); err == nil {
		t.Error("expected error for missing aggregate type")
	}
	if _, err := NewMessage("a", "EconomicEvent", "", map[string]any{"tenantId": "tn"}, nil); err == nil {
		t.Error("expected error for missing event type")
	}
}

func TestVersionAllowed(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		version   int
		want      bool
	}{
		{"current version", EventEconomicEventCreated, 1, true},
		{"future version rejected", EventEconomicEventCreated, 2, false},
		{"zero rejected", EventEconomicEventCreated, 0, false},
		{"negative rejected", EventEconomicEventCreated, -1, false},
		{"unknown type defaults to 1", "finance.unknown.event", 1, true},
		{"unknown type future rejected", "finance.unknown.event", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VersionAllowed(tt.eventType, tt.version); got != tt.want {
				t.Errorf("VersionAllowed(%s, %d): got %v, want %v",
					tt.eventType, tt.version, got, tt.want)
			}
		})
	}
}

func TestStatsBacklogged(t *testing.T) {
	s := Stats{Pending: 10, OldestPendingAge: time.Minute}

	if s.Backlogged(100, time.Hour) {
		t.Error("healthy outbox reported backlogged")
	}
	if !s.Backlogged(5, time.Hour) {
		t.Error("pending over limit not reported")
	}
	if !s.Backlogged(100, 30*time.Second) {
		t.Error("stale pending not reported")
	}
	if s.Backlogged(0, 0) {
		t.Error("disabled thresholds should never report backlogged")
	}
}
