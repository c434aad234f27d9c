package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Journal store (SQLite).
//
// SQLite has no stored procedures, so the commit-time invariants
// (double-entry balance, cash solvency, sequence assignment) are
// enforced by the store inside each transaction; only posting
// immutability is backed by triggers here.
var Migrations = migrate.NewGroup("journal")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_journal_events",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS journal_events (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL,
    type         TEXT NOT NULL,
    amount_units INTEGER NOT NULL DEFAULT 0,
    amount_scale INTEGER NOT NULL DEFAULT 2,
    currency     TEXT NOT NULL DEFAULT '',
    field_id     TEXT NOT NULL DEFAULT '',
    season_id    TEXT NOT NULL DEFAULT '',
    employee_id  TEXT NOT NULL DEFAULT '',
    execution_id TEXT NOT NULL DEFAULT '',
    replay_key   TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_journal_events_tenant_created ON journal_events (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_journal_events_created ON journal_events (created_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_events_tenant_replay
    ON journal_events (tenant_id, replay_key) WHERE replay_key != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS journal_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_journal_postings",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS journal_postings (
    id                TEXT PRIMARY KEY,
    economic_event_id TEXT NOT NULL REFERENCES journal_events (id),
    tenant_id         TEXT NOT NULL,
    direction         TEXT NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
    account_code      TEXT NOT NULL,
    amount_units      INTEGER NOT NULL CHECK (amount_units >= 0),
    amount_scale      INTEGER NOT NULL DEFAULT 2,
    currency          TEXT NOT NULL DEFAULT '',
    sequence_number   INTEGER NOT NULL DEFAULT 0,
    cash_impact       INTEGER NOT NULL DEFAULT 0,
    cash_account_id   TEXT NOT NULL DEFAULT '',
    cash_direction    TEXT NOT NULL DEFAULT '',
    cash_flow_type    TEXT NOT NULL DEFAULT '',
    due_date          TEXT,
    execution_id      TEXT NOT NULL DEFAULT '',
    is_immutable      INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (tenant_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_journal_postings_event ON journal_postings (tenant_id, economic_event_id);

CREATE TABLE IF NOT EXISTS journal_tenant_sequences (
    tenant_id TEXT PRIMARY KEY,
    next_seq  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS journal_account_balances (
    tenant_id     TEXT NOT NULL,
    account_code  TEXT NOT NULL,
    balance_units INTEGER NOT NULL DEFAULT 0,
    updated_at    TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (tenant_id, account_code)
);

CREATE TRIGGER IF NOT EXISTS trg_journal_postings_freeze_update
BEFORE UPDATE ON journal_postings
BEGIN
    SELECT RAISE(ABORT, 'JOURNAL_IMMUTABLE: postings cannot be modified');
END;

CREATE TRIGGER IF NOT EXISTS trg_journal_postings_freeze_delete
BEFORE DELETE ON journal_postings
BEGIN
    SELECT RAISE(ABORT, 'JOURNAL_IMMUTABLE: postings cannot be deleted');
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS journal_postings;
DROP TABLE IF EXISTS journal_tenant_sequences;
DROP TABLE IF EXISTS journal_account_balances;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_journal_tenant_states",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS journal_tenant_states (
    tenant_id  TEXT PRIMARY KEY,
    mode       TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (mode IN ('ACTIVE', 'READ_ONLY', 'HALTED')),
    reason     TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS journal_tenant_states`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_journal_outbox",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS journal_outbox (
    id             TEXT PRIMARY KEY,
    aggregate_id   TEXT NOT NULL DEFAULT '',
    aggregate_type TEXT NOT NULL DEFAULT '',
    event_type     TEXT NOT NULL DEFAULT '',
    event_version  INTEGER NOT NULL DEFAULT 1,
    payload        TEXT NOT NULL DEFAULT '{}',
    status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PROCESSING', 'PROCESSED', 'FAILED')),
    error          TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    processed_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_journal_outbox_status_created ON journal_outbox (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS journal_outbox`)
				return err
			},
		},
	)
}
