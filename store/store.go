package store

import (
	"context"
	"time"

	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/tenant"
)

// Tx is the write scope handed to an ingest transaction. Every write
// through it is bound to the tenant the transaction was opened for;
// rows for any other tenant are rejected at commit.
type Tx interface {
	// TenantID returns the tenant the transaction is scoped to.
	TenantID() string

	// TenantState reads the tenant's committed operating state.
	// Returns nil when no state row exists (implicitly ACTIVE).
	TenantState(ctx context.Context) (*tenant.State, error)

	// InsertEvent stages an economic event.
	InsertEvent(ctx context.Context, evt *event.EconomicEvent) error

	// AppendPosting stages one posting. The store assigns the
	// tenant-scoped sequence number at commit and enforces balance,
	// solvency and immutability for the full set.
	AppendPosting(ctx context.Context, p *posting.Posting) error

	// EnqueueOutbox stages an outbox message in the same transaction.
	EnqueueOutbox(ctx context.Context, msg *outbox.Message) error
}

// EventBalance is one event's aggregated posting totals, in minor
// units, as returned by the reconciliation scan.
type EventBalance struct {
	Event       *event.EconomicEvent
	DebitUnits  int64
	CreditUnits int64
}

// Store is the unified storage interface for all Journal entities.
// Instead of embedding sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
type Store interface {
	// InTenantTx runs fn inside a transaction scoped to one tenant.
	// Staged writes become visible atomically; if fn returns an error
	// or a commit-time invariant fails, nothing is persisted.
	// Concurrent transactions touching the same event serialize; other
	// tenants are never blocked.
	InTenantTx(ctx context.Context, tenantID string, fn func(tx Tx) error) error

	// Event reads (tenant-scoped)
	GetEvent(ctx context.Context, tenantID string, eventID id.EventID) (*event.EconomicEvent, error)
	FindEventByReplayKey(ctx context.Context, tenantID, replayKey string) (*event.EconomicEvent, error)
	ListPostings(ctx context.Context, tenantID string, eventID id.EventID) ([]*posting.Posting, error)
	CountPostings(ctx context.Context, tenantID string, eventID id.EventID) (int64, error)

	// Tenant state
	GetTenantState(ctx context.Context, tenantID string) (*tenant.State, error)
	// SetTenantMode upserts a tenant's mode (administrative path).
	SetTenantMode(ctx context.Context, tenantID string, mode tenant.Mode, reason string) error
	// PanicTenant drops a tenant to READ_ONLY unless it is already
	// READ_ONLY or HALTED. Always commits independently of any ingest
	// transaction. Returns whether the mode changed.
	PanicTenant(ctx context.Context, tenantID, reason string) (bool, error)

	// Outbox
	EnqueueOutbox(ctx context.Context, msg *outbox.Message) error
	// ClaimOutboxBatch atomically moves up to limit PENDING messages to
	// PROCESSING and returns them oldest-first. Concurrent claimers
	// never receive the same message.
	ClaimOutboxBatch(ctx context.Context, limit int) ([]*outbox.Message, error)
	MarkOutboxProcessed(ctx context.Context, msgID id.OutboxID) error
	MarkOutboxFailed(ctx context.Context, msgID id.OutboxID, errText string) error
	OutboxStats(ctx context.Context) (*outbox.Stats, error)

	// Reconciliation scans
	ScanEventsWithoutPostings(ctx context.Context, since time.Time, limit int) ([]*event.EconomicEvent, error)
	ScanEventBalances(ctx context.Context, since time.Time, limit int) ([]EventBalance, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
