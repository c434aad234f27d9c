// Package journal provides a tenant-isolated double-entry ledger engine for Go applications.
//
// Journal is designed as a library, not a service. Import it directly into your Go
// application and feed it economic facts; it derives balanced accounting postings,
// persists them under hard integrity invariants, and reacts autonomously to
// violations by halting further writes for the affected tenant. It provides:
//
//   - Deterministic double-entry attribution from typed economic events
//   - Idempotent replay handling via per-tenant replay keys
//   - Storage-level invariant enforcement (balance, solvency, isolation, immutability)
//   - A tenant lifecycle state machine (ACTIVE / READ_ONLY / HALTED)
//   - At-least-once delivery through a transactional outbox relay
//   - A periodic reconciliation auditor with alerting
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/journal"
//	    "github.com/xraph/journal/store/postgres"
//	)
//
//	// db is a *grove.DB, typically resolved from the Forge DI
//	// container (see the extension package for automatic wiring).
//	store := postgres.New(db)
//	if err := store.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the engine
//	j := journal.New(store)
//
//	// Start background workers (outbox relay, reconciliation auditor)
//	if err := j.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Stop()
//
// # Core Concepts
//
// Economic events describe business facts; the engine converts them into
// balanced posting sets:
//
//	evt, err := j.Ingest(ctx, journal.IngestInput{
//	    Type:     event.TypeCostIncurred,
//	    Amount:   125.50,
//	    Currency: "RUB",
//	    TenantID: "tn_123",
//	    Metadata: event.Metadata{event.MetaIdempotencyKey: "order-991"},
//	})
//
// Every ingest is atomic: the event, its postings and the outbox
// notification commit together or not at all. Replaying the same
// idempotency key returns the stored event without writing anything.
//
// Postings are immutable double-entry records:
//
//	postings, err := j.Postings(ctx, "tn_123", evt.ID)
//	// one DEBIT OPERATIONAL_EXPENSE, one CREDIT ACCOUNTS_PAYABLE
//
// When storage rejects a write for breaking a financial invariant, the
// tenant is dropped to READ_ONLY autonomously. Operators resume it after
// verifying the books:
//
//	err := j.ResumeTenant(ctx, "tn_123", "books verified")
//
// # Integrity Model
//
// All monetary calculations use integer arithmetic in minor units to avoid
// floating-point precision issues. The Money type carries an explicit
// per-currency decimal scale; amounts are normalized once at ingest with
// canonical half-up rounding.
//
// Four invariants are enforced at the storage boundary, not in the
// gateway: posting sets must balance, the cash account can never go
// negative, writes never cross the tenant the transaction was opened for,
// and stored postings are immutable.
//
// # Integration
//
// Journal integrates with the Forge ecosystem:
//
//   - Forge: extension wiring and tenant scope
//   - Grove: PostgreSQL and SQLite persistence
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Economic event ID
//	pst_01h2xcejqtf2nbrexx3vqjhp41  // Posting ID
//	obx_01h455vb4pex5vsknk084sn02q  // Outbox message ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package journal
