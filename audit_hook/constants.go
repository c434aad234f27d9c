package audithook

// Action constants for audit events.
const (
	// Event actions
	ActionEventIngested      = "event.ingested"
	ActionDuplicatePrevented = "event.duplicate_prevented"

	// Integrity actions
	ActionIntegrityViolation = "integrity.violation"

	// Tenant actions
	ActionTenantPanicked = "tenant.panicked"
	ActionTenantHalted   = "tenant.halted"
	ActionTenantResumed  = "tenant.resumed"

	// Outbox actions
	ActionOutboxDelivered    = "outbox.delivered"
	ActionOutboxDeadLettered = "outbox.dead_lettered"

	// Reconciliation actions
	ActionReconciliationAlert = "reconciliation.alert"
)

// Resource constants for audit events.
const (
	ResourceEvent          = "economic_event"
	ResourceTenant         = "tenant"
	ResourceOutbox         = "outbox_message"
	ResourceReconciliation = "reconciliation"
)

// Category constants for audit events.
const (
	CategoryFinance   = "finance"
	CategoryIntegrity = "integrity"
	CategoryLifecycle = "lifecycle"
	CategoryDelivery  = "delivery"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
