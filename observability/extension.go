// Package observability provides a metrics extension for Journal that records
// ingest, integrity and delivery event counts via a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/journal/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnEventIngested       = (*MetricsExtension)(nil)
	_ plugin.OnDuplicatePrevented  = (*MetricsExtension)(nil)
	_ plugin.OnIntegrityViolation  = (*MetricsExtension)(nil)
	_ plugin.OnTenantPanicked      = (*MetricsExtension)(nil)
	_ plugin.OnTenantHalted        = (*MetricsExtension)(nil)
	_ plugin.OnTenantResumed       = (*MetricsExtension)(nil)
	_ plugin.OnOutboxDelivered     = (*MetricsExtension)(nil)
	_ plugin.OnOutboxFailed        = (*MetricsExtension)(nil)
	_ plugin.OnOutboxDrained       = (*MetricsExtension)(nil)
	_ plugin.OnReconciliationAlert = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Journal plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Ingest metrics
	EventsIngested      Counter
	DuplicatesPrevented Counter
	IngestLatency       Histogram

	// Integrity metrics
	IntegrityViolations Counter
	TenantsPanicked     Counter
	TenantsHalted       Counter
	TenantsResumed      Counter

	// Outbox metrics
	OutboxDelivered    Counter
	OutboxDeadLettered Counter
	OutboxBatchSize    Histogram
	OutboxDrainLatency Histogram

	// Reconciliation metrics
	ReconciliationAlerts Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Ingest metrics
		EventsIngested:      factory.Counter("journal.events.ingested"),
		DuplicatesPrevented: factory.Counter("journal.events.duplicates_prevented"),
		IngestLatency:       factory.Histogram("journal.ingest.latency_ms"),

		// Integrity metrics
		IntegrityViolations: factory.Counter("journal.integrity.violations"),
		TenantsPanicked:     factory.Counter("journal.tenant.panicked"),
		TenantsHalted:       factory.Counter("journal.tenant.halted"),
		TenantsResumed:      factory.Counter("journal.tenant.resumed"),

		// Outbox metrics
		OutboxDelivered:    factory.Counter("journal.outbox.delivered"),
		OutboxDeadLettered: factory.Counter("journal.outbox.dead_lettered"),
		OutboxBatchSize:    factory.Histogram("journal.outbox.batch.size"),
		OutboxDrainLatency: factory.Histogram("journal.outbox.drain.latency_ms"),

		// Reconciliation metrics
		ReconciliationAlerts: factory.Counter("journal.reconciliation.alerts"),

		// Error metrics
		StoreErrors:  factory.Counter("journal.store.errors"),
		PluginErrors: factory.Counter("journal.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ingest lifecycle hooks
// ──────────────────────────────────────────────────

// OnEventIngested implements plugin.OnEventIngested.
func (m *MetricsExtension) OnEventIngested(_ context.Context, _ interface{}, elapsed time.Duration) error {
	m.EventsIngested.Inc()
	m.IngestLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnDuplicatePrevented implements plugin.OnDuplicatePrevented.
func (m *MetricsExtension) OnDuplicatePrevented(_ context.Context, _, _ string) error {
	m.DuplicatesPrevented.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Integrity lifecycle hooks
// ──────────────────────────────────────────────────

// OnIntegrityViolation implements plugin.OnIntegrityViolation.
func (m *MetricsExtension) OnIntegrityViolation(_ context.Context, _ string, _ error) error {
	m.IntegrityViolations.Inc()
	return nil
}

// OnTenantPanicked implements plugin.OnTenantPanicked.
func (m *MetricsExtension) OnTenantPanicked(_ context.Context, _, _ string) error {
	m.TenantsPanicked.Inc()
	return nil
}

// OnTenantHalted implements plugin.OnTenantHalted.
func (m *MetricsExtension) OnTenantHalted(_ context.Context, _, _ string) error {
	m.TenantsHalted.Inc()
	return nil
}

// OnTenantResumed implements plugin.OnTenantResumed.
func (m *MetricsExtension) OnTenantResumed(_ context.Context, _ string) error {
	m.TenantsResumed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Outbox lifecycle hooks
// ──────────────────────────────────────────────────

// OnOutboxDelivered implements plugin.OnOutboxDelivered.
func (m *MetricsExtension) OnOutboxDelivered(_ context.Context, _ interface{}) error {
	m.OutboxDelivered.Inc()
	return nil
}

// OnOutboxFailed implements plugin.OnOutboxFailed.
func (m *MetricsExtension) OnOutboxFailed(_ context.Context, _ interface{}, _ error) error {
	m.OutboxDeadLettered.Inc()
	return nil
}

// OnOutboxDrained implements plugin.OnOutboxDrained.
func (m *MetricsExtension) OnOutboxDrained(_ context.Context, count int, elapsed time.Duration) error {
	m.OutboxBatchSize.Observe(float64(count))
	m.OutboxDrainLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReconciliationAlert implements plugin.OnReconciliationAlert.
func (m *MetricsExtension) OnReconciliationAlert(_ context.Context, _ interface{}) error {
	m.ReconciliationAlerts.Inc()
	return nil
}
