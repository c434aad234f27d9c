package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite cannot run the commit-time checks in stored procedures, so
// ingest writes are staged and the double-entry, solvency, isolation
// and sequencing rules are applied in Go before the rows are written,
// all inside one database transaction. The backend suits single-process
// deployments; use the postgres store when multiple writers share a
// database.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("journal/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("journal/sqlite: migration failed: %w", err)
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

func (s *Store) InTenantTx(ctx context.Context, tenantID string, fn func(tx journalstore.Tx) error) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id required", journal.ErrInvalidInput)
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return mapStoreError(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	err = func() error {
		st := &sqliteTx{tenantID: tenantID, tx: tx}
		if err := fn(st); err != nil {
			return err
		}
		return st.commit(ctx)
	}()
	if err != nil {
		return mapStoreError(err)
	}
	return mapStoreError(tx.Commit())
}

// sqliteTx stages writes until the callback finishes, then validates
// and flushes them in commit.
type sqliteTx struct {
	tenantID string
	tx       *sqlitedriver.SqliteTx

	events   []*event.EconomicEvent
	postings []*posting.Posting
	messages []*outbox.Message
}

func (t *sqliteTx) TenantID() string { return t.tenantID }

func (t *sqliteTx) TenantState(ctx context.Context) (*tenant.State, error) {
	m := new(tenantStateModel)
	err := t.tx.NewSelect(m).
		Where("tenant_id = ?", t.tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromTenantStateModel(m), nil
}

func (t *sqliteTx) InsertEvent(ctx context.Context, evt *event.EconomicEvent) error {
	if evt.TenantID != t.tenantID {
		return fmt.Errorf("%w: event %s belongs to tenant %q, tx is scoped to %q",
			journal.ErrTenantIsolation, evt.ID, evt.TenantID, t.tenantID)
	}
	t.events = append(t.events, evt)
	return nil
}

func (t *sqliteTx) AppendPosting(ctx context.Context, p *posting.Posting) error {
	if p.TenantID != t.tenantID {
		return fmt.Errorf("%w: posting tenant %q, tx is scoped to %q",
			journal.ErrTenantIsolation, p.TenantID, t.tenantID)
	}
	t.postings = append(t.postings, p)
	return nil
}

func (t *sqliteTx) EnqueueOutbox(ctx context.Context, msg *outbox.Message) error {
	t.messages = append(t.messages, msg)
	return nil
}

// commit validates the staged set and writes it. Any failure rolls the
// whole transaction back.
func (t *sqliteTx) commit(ctx context.Context) error {
	if err := t.validateDoubleEntry(); err != nil {
		return err
	}
	if err := t.validateIsolation(ctx); err != nil {
		return err
	}

	for _, evt := range t.events {
		if _, err := t.tx.NewInsert(toEventModel(evt)).Exec(ctx); err != nil {
			return mapStoreError(err)
		}
	}

	if len(t.postings) > 0 {
		if err := t.assignSequences(ctx); err != nil {
			return err
		}
		if err := t.applyCashBalances(ctx); err != nil {
			return err
		}
		for _, p := range t.postings {
			if _, err := t.tx.NewInsert(toPostingModel(p)).Exec(ctx); err != nil {
				return mapStoreError(err)
			}
		}
	}

	for _, msg := range t.messages {
		if _, err := t.tx.NewInsert(toOutboxModel(msg)).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// validateDoubleEntry checks each event touched by staged postings:
// debits must equal credits and both sides must be present.
func (t *sqliteTx) validateDoubleEntry() error {
	type totals struct {
		debits, credits         int64
		debitCount, creditCount int
	}
	perEvent := make(map[id.EventID]*totals)
	for _, p := range t.postings {
		tt := perEvent[p.EconomicEventID]
		if tt == nil {
			tt = &totals{}
			perEvent[p.EconomicEventID] = tt
		}
		if p.Direction == posting.Debit {
			tt.debits += p.Amount.Units
			tt.debitCount++
		} else {
			tt.credits += p.Amount.Units
			tt.creditCount++
		}
	}
	for eventID, tt := range perEvent {
		if tt.debitCount == 0 || tt.creditCount == 0 {
			return fmt.Errorf("%w: event %s has %d debits and %d credits",
				journal.ErrIncompleteEntry, eventID, tt.debitCount, tt.creditCount)
		}
		if tt.debits != tt.credits {
			return fmt.Errorf("%w: event %s debits %d != credits %d",
				journal.ErrImbalancedEntry, eventID, tt.debits, tt.credits)
		}
	}
	return nil
}

// validateIsolation verifies postings that reference a pre-existing
// event stay inside the transaction's tenant.
func (t *sqliteTx) validateIsolation(ctx context.Context) error {
	staged := make(map[id.EventID]bool, len(t.events))
	for _, evt := range t.events {
		staged[evt.ID] = true
	}
	for _, p := range t.postings {
		if staged[p.EconomicEventID] {
			continue
		}
		m := new(eventModel)
		err := t.tx.NewSelect(m).
			Where("id = ?", p.EconomicEventID.String()).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: posting %s references unknown event %s",
					journal.ErrTenantIsolation, p.ID, p.EconomicEventID)
			}
			return err
		}
		if m.TenantID != t.tenantID {
			return fmt.Errorf("%w: event %s belongs to tenant %q",
				journal.ErrTenantIsolation, p.EconomicEventID, m.TenantID)
		}
	}
	return nil
}

// assignSequences hands out the tenant-scoped monotonic sequence
// numbers for the staged postings.
func (t *sqliteTx) assignSequences(ctx context.Context) error {
	var next int64
	err := t.tx.NewRaw(
		`SELECT next_seq FROM journal_tenant_sequences WHERE tenant_id = ?`,
		t.tenantID).Scan(ctx, &next)
	if err != nil {
		if !isNoRows(err) {
			return err
		}
		next = 1
	}

	for _, p := range t.postings {
		p.SequenceNumber = next
		next++
	}

	m := &sequenceModel{TenantID: t.tenantID, NextSeq: next}
	_, err = t.tx.NewInsert(m).
		OnConflict("(tenant_id) DO UPDATE SET next_seq = excluded.next_seq").
		Exec(ctx)
	return err
}

// applyCashBalances folds the staged cash deltas into the running
// balances and rejects any tenant whose cash would go negative.
func (t *sqliteTx) applyCashBalances(ctx context.Context) error {
	deltas := make(map[string]int64)
	for _, p := range t.postings {
		if posting.CashBearing(p.AccountCode) {
			deltas[p.AccountCode] += p.CashDelta()
		}
	}

	for accountCode, delta := range deltas {
		var balance int64
		err := t.tx.NewRaw(
			`SELECT balance_units FROM journal_account_balances WHERE tenant_id = ? AND account_code = ?`,
			t.tenantID, accountCode).Scan(ctx, &balance)
		if err != nil && !isNoRows(err) {
			return err
		}

		if balance+delta < 0 {
			return fmt.Errorf("%w: balance %d, delta %d",
				journal.ErrInsolventAccount, balance, delta)
		}

		m := &balanceModel{
			TenantID:     t.tenantID,
			AccountCode:  accountCode,
			BalanceUnits: balance + delta,
			UpdatedAt:    now(),
		}
		_, err = t.tx.NewInsert(m).
			OnConflict("(tenant_id, account_code) DO UPDATE SET balance_units = excluded.balance_units, updated_at = excluded.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

type sequenceModel struct {
	grove.BaseModel `grove:"table:journal_tenant_sequences"`

	TenantID string `grove:"tenant_id,pk"`
	NextSeq  int64  `grove:"next_seq"`
}

type balanceModel struct {
	grove.BaseModel `grove:"table:journal_account_balances"`

	TenantID     string    `grove:"tenant_id,pk"`
	AccountCode  string    `grove:"account_code,pk"`
	BalanceUnits int64     `grove:"balance_units"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

// ==================== Event reads ====================

func (s *Store) GetEvent(ctx context.Context, tenantID string, eventID id.EventID) (*event.EconomicEvent, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", eventID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("replay_key = ?", replayKey).
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
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("economic_event_id = ?", eventID.String()).
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
	err := s.sdb.NewRaw(
		`SELECT COUNT(*) FROM journal_postings WHERE tenant_id = ? AND economic_event_id = ?`,
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
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
	m := toTenantStateModel(&tenant.State{
		TenantID:  tenantID,
		Mode:      mode,
		Reason:    reason,
		UpdatedAt: now(),
	})
	_, err := s.sdb.NewInsert(m).
		OnConflict("(tenant_id) DO UPDATE SET mode = excluded.mode, reason = excluded.reason, updated_at = excluded.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) PanicTenant(ctx context.Context, tenantID, reason string) (bool, error) {
	state, err := s.GetTenantState(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if state == nil {
		if err := s.SetTenantMode(ctx, tenantID, tenant.ModeReadOnly, reason); err != nil {
			return false, err
		}
		return true, nil
	}
	if state.Mode != tenant.ModeActive {
		return false, nil
	}

	// The mode guard keeps a concurrent halt from being overwritten.
	res, err := s.sdb.NewUpdate((*tenantStateModel)(nil)).
		Set("mode = ?", string(tenant.ModeReadOnly)).
		Set("reason = ?", reason).
		Set("updated_at = ?", now()).
		Where("tenant_id = ?", tenantID).
		Where("mode = ?", string(tenant.ModeActive)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ==================== Outbox ====================

func (s *Store) EnqueueOutbox(ctx context.Context, msg *outbox.Message) error {
	_, err := s.sdb.NewInsert(toOutboxModel(msg)).Exec(ctx)
	return err
}

func (s *Store) ClaimOutboxBatch(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var models []outboxModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(outbox.StatusPending)).
		OrderExpr("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	claimed := make([]*outbox.Message, 0, len(models))
	for i := range models {
		// The status guard makes concurrent claimers skip messages
		// another claimer already took.
		res, err := s.sdb.NewUpdate((*outboxModel)(nil)).
			Set("status = ?", string(outbox.StatusProcessing)).
			Where("id = ?", models[i].ID).
			Where("status = ?", string(outbox.StatusPending)).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			continue
		}

		msg, err := fromOutboxModel(&models[i])
		if err != nil {
			return nil, err
		}
		msg.Status = outbox.StatusProcessing
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

func (s *Store) MarkOutboxProcessed(ctx context.Context, msgID id.OutboxID) error {
	return s.markOutbox(ctx, msgID, outbox.StatusProcessed, "")
}

func (s *Store) MarkOutboxFailed(ctx context.Context, msgID id.OutboxID, errText string) error {
	return s.markOutbox(ctx, msgID, outbox.StatusFailed, errText)
}

func (s *Store) markOutbox(ctx context.Context, msgID id.OutboxID, status outbox.Status, errText string) error {
	res, err := s.sdb.NewUpdate((*outboxModel)(nil)).
		Set("status = ?", string(status)).
		Set("processed_at = ?", now()).
		Set("error = ?", errText).
		Where("id = ?", msgID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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
		err := s.sdb.NewRaw(
			`SELECT COUNT(*) FROM journal_outbox WHERE status = ?`,
			string(c.status)).Scan(ctx, c.dest)
		if err != nil {
			return nil, err
		}
	}

	var oldest *time.Time
	err := s.sdb.NewRaw(
		`SELECT MIN(created_at) FROM journal_outbox WHERE status = ?`,
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
	err := s.sdb.NewSelect(&models).
		Where("created_at >= ?", since).
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
	err := s.sdb.NewSelect(&models).
		Where("created_at >= ?", since).
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
		err = s.sdb.NewRaw(
			`SELECT COALESCE(SUM(amount_units), 0) FROM journal_postings WHERE economic_event_id = ? AND direction = ?`,
			evt.ID.String(), string(posting.Debit)).Scan(ctx, &debits)
		if err != nil {
			return nil, err
		}
		err = s.sdb.NewRaw(
			`SELECT COALESCE(SUM(amount_units), 0) FROM journal_postings WHERE economic_event_id = ? AND direction = ?`,
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

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	switch {
	case strings.Contains(text, "journal_events.replay_key"):
		return fmt.Errorf("%w: %v", journal.ErrDuplicateReplayKey, err)
	case strings.Contains(text, "JOURNAL_IMMUTABLE"):
		return fmt.Errorf("%w: %v", journal.ErrInvalidInput, err)
	case isTransient(err, text):
		return fmt.Errorf("%w: %v", journal.ErrTransient, err)
	}
	return err
}

// isTransient recognizes failures a caller may retry: a locked
// database file and exceeded deadlines.
func isTransient(err error, text string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(text, "SQLITE_BUSY") ||
		strings.Contains(text, "database is locked")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC()
}
