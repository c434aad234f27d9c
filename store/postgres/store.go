package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	journal "github.com/xraph/journal"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/posting"
	journalstore "github.com/xraph/journal/store"
	"github.com/xraph/journal/tenant"
)

// compile-time interface check
var _ journalstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Ingest transactions set app.current_tenant_id for the row-level
// security policies, and the commit-time invariants (double-entry
// balance, cash solvency, tenant isolation, posting immutability) are
// enforced by triggers installed by Migrations, so they hold for every
// writer, not just this process.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, triggers and indexes using the
// grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("journal/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("journal/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Ingest transaction ====================

// InTenantTx runs fn inside a database transaction scoped to one
// tenant. The tenant id is published to the session so the row-level
// security policies apply, and trigger errors raised at commit are
// mapped back to the journal sentinel errors.
func (s *Store) InTenantTx(ctx context.Context, tenantID string, fn func(tx journalstore.Tx) error) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id required", journal.ErrInvalidInput)
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return mapStoreError(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	err = func() error {
		var setting string
		if err := tx.NewRaw(`SELECT set_config('app.current_tenant_id', $1, TRUE)`, tenantID).Scan(ctx, &setting); err != nil {
			return fmt.Errorf("journal/postgres: set tenant scope: %w", err)
		}
		return fn(&pgTx{tenantID: tenantID, tx: tx})
	}()
	if err != nil {
		return mapStoreError(err)
	}
	return mapStoreError(tx.Commit())
}

// pgTx is the tenant-scoped write handle handed to ingest callbacks.
type pgTx struct {
	tenantID string
	tx       *pgdriver.PgTx
}

func (t *pgTx) TenantID() string { return t.tenantID }

func (t *pgTx) TenantState(ctx context.Context) (*tenant.State, error) {
	m := new(tenantStateModel)
	err := t.tx.NewSelect(m).
		Where("tenant_id = $1", t.tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromTenantStateModel(m), nil
}

func (t *pgTx) InsertEvent(ctx context.Context, evt *event.EconomicEvent) error {
	if evt.TenantID != t.tenantID {
		return fmt.Errorf("%w: event %s belongs to tenant %q, tx is scoped to %q",
			journal.ErrTenantIsolation, evt.ID, evt.TenantID, t.tenantID)
	}
	_, err := t.tx.NewInsert(toEventModel(evt)).Exec(ctx)
	return mapStoreError(err)
}

func (t *pgTx) AppendPosting(ctx context.Context, p *posting.Posting) error {
	if p.TenantID != t.tenantID {
		return fmt.Errorf("%w: posting tenant %q, tx is scoped to %q",
			journal.ErrTenantIsolation, p.TenantID, t.tenantID)
	}
	_, err := t.tx.NewInsert(toPostingModel(p)).Exec(ctx)
	return mapStoreError(err)
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg *outbox.Message) error {
	_, err := t.tx.NewInsert(toOutboxModel(msg)).Exec(ctx)
	return err
}

// ==================== Event reads ====================

func (s *Store) GetEvent(ctx context.Context, tenantID string, eventID id.EventID) (*event.EconomicEvent, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("id = $2", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journal.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) FindEventByReplayKey(ctx context.Context, tenantID, replayKey string) (*event.EconomicEvent, error) {
	if replayKey == "" {
		return nil, journal.ErrEventNotFound
	}
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("replay_key = $2", replayKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, journal.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListPostings(ctx context.Context, tenantID string, eventID id.EventID) ([]*posting.Posting, error) {
	var models []postingModel
	err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		Where("economic_event_id = $2", eventID.String()).
		OrderExpr("sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	postings := make([]*posting.Posting, 0, len(models))
	for i := range models {
		p, err := fromPostingModel(&models[i])
		if err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, nil
}

func (s *Store) CountPostings(ctx context.Context, tenantID string, eventID id.EventID) (int64, error) {
	var total int64
	err := s.pg.NewRaw(
		`SELECT COUNT(*) FROM journal_postings WHERE tenant_id = $1 AND economic_event_id = $2`,
		tenantID, eventID.String(),
	).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ==================== Tenant state ====================

func (s *Store) GetTenantState(ctx context.Context, tenantID string) (*tenant.State, error) {
	m := new(tenantStateModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromTenantStateModel(m), nil
}

func (s *Store) SetTenantMode(ctx context.Context, tenantID string, mode tenant.Mode, reason string) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %q", journal.ErrInvalidInput, mode)
	}
	var applied string
	return s.pg.NewRaw(`
INSERT INTO journal_tenant_states (tenant_id, mode, reason, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (tenant_id) DO UPDATE SET
    mode = EXCLUDED.mode,
    reason = EXCLUDED.reason,
    updated_at = NOW()
RETURNING mode`, tenantID, string(mode), reason).Scan(ctx, &applied)
}

func (s *Store) PanicTenant(ctx context.Context, tenantID, reason string) (bool, error) {
	// The conditional upsert only demotes ACTIVE tenants; a tenant
	// already READ_ONLY or HALTED is left untouched and reports no
	// change.
	var changedMode string
	err := s.pg.NewRaw(`
INSERT INTO journal_tenant_states (tenant_id, mode, reason, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (tenant_id) DO UPDATE SET
    mode = EXCLUDED.mode,
    reason = EXCLUDED.reason,
    updated_at = NOW()
WHERE journal_tenant_states.mode = $4
RETURNING mode`, tenantID, string(tenant.ModeReadOnly), reason, string(tenant.ModeActive)).Scan(ctx, &changedMode)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ==================== Outbox ====================

func (s *Store) EnqueueOutbox(ctx context.Context, msg *outbox.Message) error {
	_, err := s.pg.NewInsert(toOutboxModel(msg)).Exec(ctx)
	return err
}

// ClaimOutboxBatch moves up to limit PENDING messages to PROCESSING and
// returns them oldest-first. Each claim is a single statement with SKIP
// LOCKED, so concurrent relays never receive the same message.
func (s *Store) ClaimOutboxBatch(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	claimed := make([]*outbox.Message, 0, limit)
	for len(claimed) < limit {
		var msgID string
		err := s.pg.NewRaw(`
UPDATE journal_outbox SET status = $1
WHERE id = (
    SELECT id FROM journal_outbox
    WHERE status = $2
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id`, string(outbox.StatusProcessing), string(outbox.StatusPending)).Scan(ctx, &msgID)
		if err != nil {
			if isNoRows(err) {
				break
			}
			return nil, err
		}
		if msgID == "" {
			break
		}

		m := new(outboxModel)
		if err := s.pg.NewSelect(m).Where("id = $1", msgID).Scan(ctx); err != nil {
			return nil, err
		}
		msg, err := fromOutboxModel(m)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

func (s *Store) MarkOutboxProcessed(ctx context.Context, msgID id.OutboxID) error {
	res, err := s.pg.NewUpdate((*outboxModel)(nil)).
		Set("status = $1", string(outbox.StatusProcessed)).
		Set("processed_at = $2", time.Now().UTC()).
		Set("error = $3", "").
		Where("id = $4", msgID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // driver supports RowsAffected
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) MarkOutboxFailed(ctx context.Context, msgID id.OutboxID, errText string) error {
	res, err := s.pg.NewUpdate((*outboxModel)(nil)).
		Set("status = $1", string(outbox.StatusFailed)).
		Set("processed_at = $2", time.Now().UTC()).
		Set("error = $3", errText).
		Where("id = $4", msgID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // driver supports RowsAffected
		return journal.ErrNotFound
	}
	return nil
}

func (s *Store) OutboxStats(ctx context.Context) (*outbox.Stats, error) {
	stats := new(outbox.Stats)

	counts := []struct {
		status outbox.Status
		dest   *int
	}{
		{outbox.StatusPending, &stats.Pending},
		{outbox.StatusProcessing, &stats.Processing},
		{outbox.StatusProcessed, &stats.Processed},
		{outbox.StatusFailed, &stats.Failed},
	}
	for _, c := range counts {
		err := s.pg.NewRaw(
			`SELECT COUNT(*) FROM journal_outbox WHERE status = $1`,
			string(c.status)).Scan(ctx, c.dest)
		if err != nil {
			return nil, err
		}
	}

	var oldest *time.Time
	err := s.pg.NewRaw(
		`SELECT MIN(created_at) FROM journal_outbox WHERE status = $1`,
		string(outbox.StatusPending)).Scan(ctx, &oldest)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	if oldest != nil {
		stats.OldestPendingAge = time.Since(*oldest)
	}
	return stats, nil
}

// ==================== Reconciliation scans ====================

func (s *Store) ScanEventsWithoutPostings(ctx context.Context, since time.Time, limit int) ([]*event.EconomicEvent, error) {
	var models []eventModel
	err := s.pg.NewSelect(&models).
		Where("created_at >= $1", since).
		Where("NOT EXISTS (SELECT 1 FROM journal_postings p WHERE p.economic_event_id = journal_events.id)").
		OrderExpr("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]*event.EconomicEvent, 0, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func (s *Store) ScanEventBalances(ctx context.Context, since time.Time, limit int) ([]journalstore.EventBalance, error) {
	var models []eventModel
	err := s.pg.NewSelect(&models).
		Where("created_at >= $1", since).
		OrderExpr("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	balances := make([]journalstore.EventBalance, 0, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		var debits, credits int64
		err = s.pg.NewRaw(`
SELECT COALESCE(SUM(amount_units), 0) FROM journal_postings
WHERE economic_event_id = $1 AND direction = $2`,
			evt.ID.String(), string(posting.Debit)).Scan(ctx, &debits)
		if err != nil {
			return nil, err
		}
		err = s.pg.NewRaw(`
SELECT COALESCE(SUM(amount_units), 0) FROM journal_postings
WHERE economic_event_id = $1 AND direction = $2`,
			evt.ID.String(), string(posting.Credit)).Scan(ctx, &credits)
		if err != nil {
			return nil, err
		}

		if debits == 0 && credits == 0 {
			// No postings at all; the orphan scan covers these.
			continue
		}
		balances = append(balances, journalstore.EventBalance{
			Event:       evt,
			DebitUnits:  debits,
			CreditUnits: credits,
		})
	}
	return balances, nil
}

// ==================== Helpers ====================

// mapStoreError translates database-raised integrity tokens and unique
// violations into the journal sentinel errors so callers can classify
// failures with errors.Is.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	switch {
	case strings.Contains(text, "JOURNAL_TENANT_ISOLATION"):
		return fmt.Errorf("%w: %v", journal.ErrTenantIsolation, err)
	case strings.Contains(text, "JOURNAL_INSOLVENT"):
		return fmt.Errorf("%w: %v", journal.ErrInsolventAccount, err)
	case strings.Contains(text, "JOURNAL_IMBALANCED"):
		return fmt.Errorf("%w: %v", journal.ErrImbalancedEntry, err)
	case strings.Contains(text, "JOURNAL_INCOMPLETE"):
		return fmt.Errorf("%w: %v", journal.ErrIncompleteEntry, err)
	case strings.Contains(text, "uq_journal_events_tenant_replay"):
		return fmt.Errorf("%w: %v", journal.ErrDuplicateReplayKey, err)
	case isTransient(err, text):
		return fmt.Errorf("%w: %v", journal.ErrTransient, err)
	}
	return err
}

// isTransient recognizes failures a caller may retry: serialization
// failures (40001), deadlocks (40P01), lock timeouts (55P03),
// cancelled statements (57014) and exceeded deadlines.
func isTransient(err error, text string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, code := range []string{"40001", "40P01", "55P03", "57014"} {
		if strings.Contains(text, code) {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
