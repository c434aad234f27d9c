// Package outbox implements the transactional outbox message model.
// Messages are written in the same transaction as the domain rows they
// describe and drained asynchronously by the relay worker.
package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/journal/id"
)

// Status is the delivery lifecycle of an outbox message.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Event type constants published through the outbox.
const (
	EventEconomicEventCreated = "finance.economic_event.created"
	EventReconciliationAlert  = "finance.reconciliation.alert"
)

// PayloadTenantKey is the payload field every tenant-scoped message
// must carry. Consumers rely on it for routing and isolation.
const PayloadTenantKey = "tenantId"

// PayloadSystemScopeKey marks a message as deliberately tenant-less.
// Only internal producers may set it.
const PayloadSystemScopeKey = "systemScope"

// ErrUnscopedPayload reports a tenant-scoped message whose payload is
// missing its tenant identifier.
var ErrUnscopedPayload = errors.New("outbox: payload missing tenantId")

// Message is one outbox row. Payload is stored as JSON; EventVersion
// pins the producer schema so consumers can reject unknown versions.
type Message struct {
	ID            id.OutboxID    `json:"id"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	EventType     string         `json:"event_type"`
	EventVersion  int            `json:"event_version"`
	Payload       map[string]any `json:"payload"`
	Status        Status         `json:"status"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// Options adjusts message construction.
type Options struct {
	// AllowSystemScope permits a payload without tenantId. The payload
	// is stamped with systemScope=true so consumers can tell a
	// deliberate system message from a producer bug.
	AllowSystemScope bool
}

// NewMessage builds a PENDING outbox message, enforcing tenant scoping
// on the payload and stamping the current schema version for the event
// type.
func NewMessage(aggregateID, aggregateType, eventType string, payload map[string]any, opts *Options) (*Message, error) {
	if aggregateID == "" || aggregateType == "" || eventType == "" {
		return nil, fmt.Errorf("outbox: aggregate id, aggregate type and event type are required")
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}

	tenantID, _ := body[PayloadTenantKey].(string)
	if tenantID == "" {
		if opts == nil || !opts.AllowSystemScope {
			return nil, fmt.Errorf("%w: event type %s", ErrUnscopedPayload, eventType)
		}
		body[PayloadSystemScopeKey] = true
	}

	return &Message{
		ID:            id.NewOutboxID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventVersion:  VersionFor(eventType),
		Payload:       body,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// TenantID returns the tenant the message is scoped to, or "" for
// system-scoped messages.
func (m *Message) TenantID() string {
	s, _ := m.Payload[PayloadTenantKey].(string)
	return s
}

// SystemScoped reports whether the message was deliberately published
// without a tenant.
func (m *Message) SystemScoped() bool {
	b, _ := m.Payload[PayloadSystemScopeKey].(bool)
	return b
}

// eventVersions pins the current payload schema per event type.
// Types absent from the map default to version 1.
var eventVersions = map[string]int{
	EventEconomicEventCreated: 1,
	EventReconciliationAlert:  1,
}

// VersionFor returns the current schema version for an event type.
func VersionFor(eventType string) int {
	if v, ok := eventVersions[eventType]; ok {
		return v
	}
	return 1
}

// VersionAllowed reports whether a stored message's version is still
// deliverable. Messages newer than the process understands are
// rejected; older versions up to the current one are accepted.
func VersionAllowed(eventType string, version int) bool {
	return version >= 1 && version <= VersionFor(eventType)
}

// Stats summarizes outbox health for observability surfaces.
type Stats struct {
	Pending          int           `json:"pending"`
	Processing       int           `json:"processing"`
	Processed        int           `json:"processed"`
	Failed           int           `json:"failed"`
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

// Backlogged reports whether undelivered work is accumulating.
func (s Stats) Backlogged(maxPending int, maxAge time.Duration) bool {
	if maxPending > 0 && s.Pending > maxPending {
		return true
	}
	return maxAge > 0 && s.OldestPendingAge > maxAge
}
