// Package audithook bridges Journal lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnEventIngested       = (*Extension)(nil)
	_ plugin.OnDuplicatePrevented  = (*Extension)(nil)
	_ plugin.OnIntegrityViolation  = (*Extension)(nil)
	_ plugin.OnTenantPanicked      = (*Extension)(nil)
	_ plugin.OnTenantHalted        = (*Extension)(nil)
	_ plugin.OnTenantResumed       = (*Extension)(nil)
	_ plugin.OnOutboxFailed        = (*Extension)(nil)
	_ plugin.OnReconciliationAlert = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Journal lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ingest lifecycle hooks
// ──────────────────────────────────────────────────

// OnEventIngested implements plugin.OnEventIngested.
func (e *Extension) OnEventIngested(ctx context.Context, raw interface{}, elapsed time.Duration) error {
	evt, _ := raw.(*event.EconomicEvent)
	if evt == nil {
		return nil
	}
	return e.record(ctx, ActionEventIngested, SeverityInfo, OutcomeSuccess,
		ResourceEvent, evt.ID.String(), CategoryFinance, nil,
		"tenant_id", evt.TenantID,
		"type", string(evt.Type),
		"amount", evt.Amount.Format(),
		"currency", evt.Currency,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnDuplicatePrevented implements plugin.OnDuplicatePrevented.
func (e *Extension) OnDuplicatePrevented(ctx context.Context, tenantID, replayKey string) error {
	return e.record(ctx, ActionDuplicatePrevented, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryFinance, nil,
		"tenant_id", tenantID,
		"replay_key", replayKey,
	)
}

// ──────────────────────────────────────────────────
// Integrity lifecycle hooks
// ──────────────────────────────────────────────────

// OnIntegrityViolation implements plugin.OnIntegrityViolation.
func (e *Extension) OnIntegrityViolation(ctx context.Context, tenantID string, violation error) error {
	return e.record(ctx, ActionIntegrityViolation, SeverityCritical, OutcomeFailure,
		ResourceTenant, tenantID, CategoryIntegrity, violation,
		"tenant_id", tenantID,
	)
}

// OnTenantPanicked implements plugin.OnTenantPanicked.
func (e *Extension) OnTenantPanicked(ctx context.Context, tenantID, reason string) error {
	return e.record(ctx, ActionTenantPanicked, SeverityCritical, OutcomeSuccess,
		ResourceTenant, tenantID, CategoryLifecycle, nil,
		"tenant_id", tenantID,
		"panic_reason", reason,
	)
}

// OnTenantHalted implements plugin.OnTenantHalted.
func (e *Extension) OnTenantHalted(ctx context.Context, tenantID, reason string) error {
	return e.record(ctx, ActionTenantHalted, SeverityWarning, OutcomeSuccess,
		ResourceTenant, tenantID, CategoryLifecycle, nil,
		"tenant_id", tenantID,
		"halt_reason", reason,
	)
}

// OnTenantResumed implements plugin.OnTenantResumed.
func (e *Extension) OnTenantResumed(ctx context.Context, tenantID string) error {
	return e.record(ctx, ActionTenantResumed, SeverityInfo, OutcomeSuccess,
		ResourceTenant, tenantID, CategoryLifecycle, nil,
		"tenant_id", tenantID,
	)
}

// ──────────────────────────────────────────────────
// Delivery lifecycle hooks
// ──────────────────────────────────────────────────

// OnOutboxFailed implements plugin.OnOutboxFailed.
func (e *Extension) OnOutboxFailed(ctx context.Context, raw interface{}, deliveryErr error) error {
	msg, _ := raw.(*outbox.Message)
	if msg == nil {
		return nil
	}
	return e.record(ctx, ActionOutboxDeadLettered, SeverityError, OutcomeFailure,
		ResourceOutbox, msg.ID.String(), CategoryDelivery, deliveryErr,
		"event_type", msg.EventType,
		"tenant_id", msg.TenantID(),
	)
}

// OnReconciliationAlert implements plugin.OnReconciliationAlert.
func (e *Extension) OnReconciliationAlert(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionReconciliationAlert, SeverityWarning, OutcomeFailure,
		ResourceReconciliation, "", CategoryIntegrity, nil,
		"event", "reconciliation_alert",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
