// Package memory provides an in-memory Store implementation. It
// enforces the same commit-time invariants as the SQL backends
// (balance, solvency, tenant isolation, replay uniqueness, sequence
// assignment) and is the reference backend for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/journal"
	"github.com/xraph/journal/event"
	"github.com/xraph/journal/id"
	"github.com/xraph/journal/outbox"
	"github.com/xraph/journal/posting"
	"github.com/xraph/journal/store"
	"github.com/xraph/journal/tenant"
)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Event storage
	events      map[string]*event.EconomicEvent
	eventOrder  []string
	replayIndex map[string]string // tenant+key -> event ID

	// Posting storage, keyed by event ID
	postings map[string][]*posting.Posting

	// Tenant states
	tenants map[string]*tenant.State

	// Outbox rows in enqueue order
	outboxRows []*outbox.Message

	// Per-tenant posting sequence counters
	sequences map[string]int64

	// Cash balances in minor units, keyed by tenant+account
	cashBalances map[string]int64
}

func New() *Store {
	return &Store{
		events:       make(map[string]*event.EconomicEvent),
		replayIndex:  make(map[string]string),
		postings:     make(map[string][]*posting.Posting),
		tenants:      make(map[string]*tenant.State),
		sequences:    make(map[string]int64),
		cashBalances: make(map[string]int64),
	}
}

var _ store.Store = (*Store)(nil)

func scopedKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

// ==================== Transactions ====================

// memTx buffers writes until commit. Nothing staged is visible to
// reads, and commit applies everything or nothing.
type memTx struct {
	s        *Store
	tenantID string

	events   []*event.EconomicEvent
	postings []*posting.Posting
	outbox   []*outbox.Message
}

func (t *memTx) TenantID() string { return t.tenantID }

func (t *memTx) TenantState(ctx context.Context) (*tenant.State, error) {
	return t.s.GetTenantState(ctx, t.tenantID)
}

func (t *memTx) InsertEvent(_ context.Context, evt *event.EconomicEvent) error {
	if evt == nil {
		return journal.ErrInvalidInput
	}
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) AppendPosting(_ context.Context, p *posting.Posting) error {
	if p == nil {
		return journal.ErrInvalidInput
	}
	t.postings = append(t.postings, p)
	return nil
}

func (t *memTx) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	if msg == nil {
		return journal.ErrInvalidInput
	}
	t.outbox = append(t.outbox, msg)
	return nil
}

func (s *Store) InTenantTx(ctx context.Context, tenantID string, fn func(tx store.Tx) error) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id required", journal.ErrInvalidInput)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return journal.ErrStoreClosed
	}

	tx := &memTx{s: s, tenantID: tenantID}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

// commit validates the staged rows against committed state and applies
// them atomically. Validation mirrors the deferred constraint trigger
// of the postgres backend: balance and completeness per touched event,
// solvency per cash account, strict tenant scoping.
func (s *Store) commit(_ context.Context, tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return journal.ErrStoreClosed
	}

	if err := s.validateScope(tx); err != nil {
		return err
	}
	if err := s.validateWritable(tx); err != nil {
		return err
	}
	if err := s.validateReplayKeys(tx); err != nil {
		return err
	}
	if err := s.validateDoubleEntry(tx); err != nil {
		return err
	}
	if err := s.validateSolvency(tx); err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, evt := range tx.events {
		cp := *evt
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		s.events[cp.ID.String()] = &cp
		s.eventOrder = append(s.eventOrder, cp.ID.String())
		if cp.ReplayKey != "" {
			s.replayIndex[scopedKey(cp.TenantID, cp.ReplayKey)] = cp.ID.String()
		}
	}

	for _, p := range tx.postings {
		cp := *p
		s.sequences[tx.tenantID]++
		cp.SequenceNumber = s.sequences[tx.tenantID]
		cp.IsImmutable = true
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		key := cp.EconomicEventID.String()
		s.postings[key] = append(s.postings[key], &cp)

		if posting.CashBearing(cp.AccountCode) {
			s.cashBalances[scopedKey(cp.TenantID, cp.AccountCode)] += cp.CashDelta()
		}
	}

	for _, msg := range tx.outbox {
		cp := *msg
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.outboxRows = append(s.outboxRows, &cp)
	}

	return nil
}

func (s *Store) validateScope(tx *memTx) error {
	for _, evt := range tx.events {
		if evt.TenantID != tx.tenantID {
			return fmt.Errorf("%w: event %s belongs to %q, tx scoped to %q",
				journal.ErrTenantIsolation, evt.ID, evt.TenantID, tx.tenantID)
		}
	}
	for _, p := range tx.postings {
		if p.TenantID != tx.tenantID {
			return fmt.Errorf("%w: posting for %q, tx scoped to %q",
				journal.ErrTenantIsolation, p.TenantID, tx.tenantID)
		}
		// Postings may only reference events visible to this tenant.
		if target, ok := s.events[p.EconomicEventID.String()]; ok && target.TenantID != tx.tenantID {
			return fmt.Errorf("%w: posting references event of %q",
				journal.ErrTenantIsolation, target.TenantID)
		}
	}
	return nil
}

func (s *Store) validateWritable(tx *memTx) error {
	if len(tx.events) == 0 && len(tx.postings) == 0 && len(tx.outbox) == 0 {
		return nil
	}
	st, ok := s.tenants[tx.tenantID]
	if !ok {
		return nil
	}
	switch st.Mode {
	case tenant.ModeHalted:
		return fmt.Errorf("%w: tenant %s", journal.ErrTenantHalted, tx.tenantID)
	case tenant.ModeReadOnly:
		return fmt.Errorf("%w: tenant %s", journal.ErrTenantReadOnly, tx.tenantID)
	}
	return nil
}

func (s *Store) validateReplayKeys(tx *memTx) error {
	seen := make(map[string]bool)
	for _, evt := range tx.events {
		if _, exists := s.events[evt.ID.String()]; exists {
			return fmt.Errorf("%w: event %s already stored", journal.ErrInvalidInput, evt.ID)
		}
		if evt.ReplayKey == "" {
			continue
		}
		key := scopedKey(evt.TenantID, evt.ReplayKey)
		if _, dup := s.replayIndex[key]; dup || seen[key] {
			return fmt.Errorf("%w: %s", journal.ErrDuplicateReplayKey, evt.ReplayKey)
		}
		seen[key] = true
	}
	return nil
}

// validateDoubleEntry checks every event touched by this transaction:
// combining committed and staged postings, debits must equal credits
// and both sides must be present.
func (s *Store) validateDoubleEntry(tx *memTx) error {
	if len(tx.postings) == 0 {
		return nil
	}

	touched := make(map[string]bool)
	for _, p := range tx.postings {
		touched[p.EconomicEventID.String()] = true
	}

	for eventID := range touched {
		var debits, credits int64
		var debitCount, creditCount int

		tally := func(p *posting.Posting) {
			if p.Direction == posting.Debit {
				debits += p.Amount.Units
				debitCount++
			} else {
				credits += p.Amount.Units
				creditCount++
			}
		}
		for _, p := range s.postings[eventID] {
			tally(p)
		}
		for _, p := range tx.postings {
			if p.EconomicEventID.String() == eventID {
				tally(p)
			}
		}

		if debitCount == 0 || creditCount == 0 {
			return fmt.Errorf("%w: event %s has %d debits, %d credits",
				journal.ErrIncompleteEntry, eventID, debitCount, creditCount)
		}
		if debits != credits {
			return fmt.Errorf("%w: event %s debits %d != credits %d",
				journal.ErrImbalancedEntry, eventID, debits, credits)
		}
	}
	return nil
}

func (s *Store) validateSolvency(tx *memTx) error {
	deltas := make(map[string]int64)
	for _, p := range tx.postings {
		if posting.CashBearing(p.AccountCode) {
			deltas[scopedKey(p.TenantID, p.AccountCode)] += p.CashDelta()
		}
	}
	for key, delta := range deltas {
		if s.cashBalances[key]+delta < 0 {
			return fmt.Errorf("%w: balance %d, delta %d",
				journal.ErrInsolventAccount, s.cashBalances[key], delta)
		}
	}
	return nil
}

// ==================== Event reads ====================

func (s *Store) GetEvent(_ context.Context, tenantID string, eventID id.EventID) (*event.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[eventID.String()]
	if !ok || evt.TenantID != tenantID {
		return nil, journal.ErrEventNotFound
	}
	cp := *evt
	return &cp, nil
}

func (s *Store) FindEventByReplayKey(_ context.Context, tenantID, replayKey string) (*event.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventID, ok := s.replayIndex[scopedKey(tenantID, replayKey)]
	if !ok {
		return nil, journal.ErrEventNotFound
	}
	cp := *s.events[eventID]
	return &cp, nil
}

func (s *Store) ListPostings(_ context.Context, tenantID string, eventID id.EventID) ([]*posting.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[eventID.String()]
	if !ok || evt.TenantID != tenantID {
		return nil, journal.ErrEventNotFound
	}

	rows := s.postings[eventID.String()]
	out := make([]*posting.Posting, 0, len(rows))
	for _, p := range rows {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out, nil
}

func (s *Store) CountPostings(_ context.Context, tenantID string, eventID id.EventID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[eventID.String()]
	if !ok || evt.TenantID != tenantID {
		return 0, journal.ErrEventNotFound
	}
	return int64(len(s.postings[eventID.String()])), nil
}

// ==================== Tenant state ====================

func (s *Store) GetTenantState(_ context.Context, tenantID string) (*tenant.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *Store) SetTenantMode(_ context.Context, tenantID string, mode tenant.Mode, reason string) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %q", journal.ErrInvalidInput, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[tenantID] = &tenant.State{
		TenantID:  tenantID,
		Mode:      mode,
		Reason:    reason,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) PanicTenant(_ context.Context, tenantID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.tenants[tenantID]; ok {
		if st.Mode == tenant.ModeHalted || st.Mode == tenant.ModeReadOnly {
			return false, nil
		}
	}
	s.tenants[tenantID] = &tenant.State{
		TenantID:  tenantID,
		Mode:      tenant.ModeReadOnly,
		Reason:    reason,
		UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

// ==================== Outbox ====================

func (s *Store) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	if msg == nil {
		return journal.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return journal.ErrStoreClosed
	}
	cp := *msg
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.outboxRows = append(s.outboxRows, &cp)
	return nil
}

func (s *Store) ClaimOutboxBatch(_ context.Context, limit int) ([]*outbox.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []*outbox.Message
	for _, row := range s.outboxRows {
		if row.Status != outbox.StatusPending {
			continue
		}
		row.Status = outbox.StatusProcessing
		cp := *row
		claimed = append(claimed, &cp)
		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

func (s *Store) MarkOutboxProcessed(_ context.Context, msgID id.OutboxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.findOutbox(msgID)
	if row == nil {
		return journal.ErrNotFound
	}
	now := time.Now().UTC()
	row.Status = outbox.StatusProcessed
	row.ProcessedAt = &now
	row.Error = ""
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, msgID id.OutboxID, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.findOutbox(msgID)
	if row == nil {
		return journal.ErrNotFound
	}
	row.Status = outbox.StatusFailed
	row.Error = errText
	return nil
}

func (s *Store) findOutbox(msgID id.OutboxID) *outbox.Message {
	for _, row := range s.outboxRows {
		if row.ID.String() == msgID.String() {
			return row
		}
	}
	return nil
}

func (s *Store) OutboxStats(_ context.Context) (*outbox.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &outbox.Stats{}
	now := time.Now().UTC()
	for _, row := range s.outboxRows {
		switch row.Status {
		case outbox.StatusPending:
			stats.Pending++
			if age := now.Sub(row.CreatedAt); age > stats.OldestPendingAge {
				stats.OldestPendingAge = age
			}
		case outbox.StatusProcessing:
			stats.Processing++
		case outbox.StatusProcessed:
			stats.Processed++
		case outbox.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ==================== Reconciliation scans ====================

func (s *Store) ScanEventsWithoutPostings(_ context.Context, since time.Time, limit int) ([]*event.EconomicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*event.EconomicEvent
	for _, eventID := range s.eventOrder {
		evt := s.events[eventID]
		if evt.CreatedAt.Before(since) || len(s.postings[eventID]) > 0 {
			continue
		}
		cp := *evt
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ScanEventBalances(_ context.Context, since time.Time, limit int) ([]store.EventBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.EventBalance
	for _, eventID := range s.eventOrder {
		evt := s.events[eventID]
		rows := s.postings[eventID]
		if evt.CreatedAt.Before(since) || len(rows) == 0 {
			continue
		}

		var bal store.EventBalance
		cp := *evt
		bal.Event = &cp
		for _, p := range rows {
			if p.Direction == posting.Debit {
				bal.DebitUnits += p.Amount.Units
			} else {
				bal.CreditUnits += p.Amount.Units
			}
		}
		out = append(out, bal)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return journal.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
