// Package plugin provides an extensible plugin system for Journal.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ingest hooks
// ──────────────────────────────────────────────────

// OnEventIngested is called after an economic event and its postings
// commit. The event is passed as interface{} to avoid import cycles;
// it is always a *event.EconomicEvent.
type OnEventIngested interface {
	Plugin
	OnEventIngested(ctx context.Context, evt interface{}, elapsed time.Duration) error
}

// OnDuplicatePrevented is called when a replay is absorbed instead of
// creating a second event.
type OnDuplicatePrevented interface {
	Plugin
	OnDuplicatePrevented(ctx context.Context, tenantID, replayKey string) error
}

// OnIntegrityViolation is called when storage rejects a write for
// breaking a financial invariant.
type OnIntegrityViolation interface {
	Plugin
	OnIntegrityViolation(ctx context.Context, tenantID string, violation error) error
}

// ──────────────────────────────────────────────────
// Tenant lifecycle hooks
// ──────────────────────────────────────────────────

// OnTenantPanicked is called when a tenant autonomously drops to
// READ_ONLY after an integrity violation.
type OnTenantPanicked interface {
	Plugin
	OnTenantPanicked(ctx context.Context, tenantID, reason string) error
}

// OnTenantHalted is called when an administrator halts a tenant.
type OnTenantHalted interface {
	Plugin
	OnTenantHalted(ctx context.Context, tenantID, reason string) error
}

// OnTenantResumed is called when a tenant returns to ACTIVE.
type OnTenantResumed interface {
	Plugin
	OnTenantResumed(ctx context.Context, tenantID string) error
}

// ──────────────────────────────────────────────────
// Outbox hooks
// ──────────────────────────────────────────────────

// OnOutboxDelivered is called after a message is delivered to all
// consumers. The message is always a *outbox.Message.
type OnOutboxDelivered interface {
	Plugin
	OnOutboxDelivered(ctx context.Context, msg interface{}) error
}

// OnOutboxFailed is called when a message is dead-lettered.
type OnOutboxFailed interface {
	Plugin
	OnOutboxFailed(ctx context.Context, msg interface{}, deliveryErr error) error
}

// OnOutboxDrained is called after each relay pass that moved at least
// one message.
type OnOutboxDrained interface {
	Plugin
	OnOutboxDrained(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnReconciliationAlert is called for each anomaly the auditor finds.
// The alert is always a *journal.ReconciliationAlert.
type OnReconciliationAlert interface {
	Plugin
	OnReconciliationAlert(ctx context.Context, alert interface{}) error
}
