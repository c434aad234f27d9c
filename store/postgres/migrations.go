package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Journal store.
//
// Integrity rules the application also checks are enforced again here in
// the database itself: double-entry balance, cash solvency, tenant
// isolation, posting immutability and replay-key uniqueness all hold
// even for writes that bypass the Go engine. Trigger errors carry
// stable JOURNAL_* tokens that the store maps back to sentinel errors.
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
    amount_units BIGINT NOT NULL DEFAULT 0,
    amount_scale INT NOT NULL DEFAULT 2,
    currency     TEXT NOT NULL DEFAULT '',
    field_id     TEXT NOT NULL DEFAULT '',
    season_id    TEXT NOT NULL DEFAULT '',
    employee_id  TEXT NOT NULL DEFAULT '',
    execution_id TEXT NOT NULL DEFAULT '',
    replay_key   TEXT NOT NULL DEFAULT '',
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_journal_events_tenant_created ON journal_events (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_journal_events_created ON journal_events (created_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_events_tenant_replay
    ON journal_events (tenant_id, replay_key) WHERE replay_key != '';

ALTER TABLE journal_events ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS journal_events_tenant_isolation ON journal_events;
CREATE POLICY journal_events_tenant_isolation ON journal_events
    USING (tenant_id = current_setting('app.current_tenant_id', TRUE));
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
    amount_units      BIGINT NOT NULL CHECK (amount_units >= 0),
    amount_scale      INT NOT NULL DEFAULT 2,
    currency          TEXT NOT NULL DEFAULT '',
    sequence_number   BIGINT NOT NULL DEFAULT 0,
    cash_impact       BOOLEAN NOT NULL DEFAULT FALSE,
    cash_account_id   TEXT NOT NULL DEFAULT '',
    cash_direction    TEXT NOT NULL DEFAULT '',
    cash_flow_type    TEXT NOT NULL DEFAULT '',
    due_date          TIMESTAMPTZ,
    execution_id      TEXT NOT NULL DEFAULT '',
    is_immutable      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_journal_postings_event ON journal_postings (tenant_id, economic_event_id);

CREATE TABLE IF NOT EXISTS journal_tenant_sequences (
    tenant_id TEXT PRIMARY KEY,
    next_seq  BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS journal_account_balances (
    tenant_id     TEXT NOT NULL,
    account_code  TEXT NOT NULL,
    balance_units BIGINT NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, account_code)
);

ALTER TABLE journal_postings ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS journal_postings_tenant_isolation ON journal_postings;
CREATE POLICY journal_postings_tenant_isolation ON journal_postings
    USING (tenant_id = current_setting('app.current_tenant_id', TRUE));

-- Assigns the tenant-scoped sequence, checks the posting stays inside
-- its event's tenant, and keeps the CASH running balance non-negative.
-- The advisory lock serializes writers of one event without blocking
-- the rest of the journal; sequence and balance rows carry their own
-- row locks for cross-event ordering.
CREATE OR REPLACE FUNCTION journal_postings_guard() RETURNS TRIGGER AS $$
DECLARE
    event_tenant TEXT;
BEGIN
    PERFORM pg_advisory_xact_lock(hashtext('journal:' || NEW.economic_event_id));

    SELECT tenant_id INTO event_tenant
    FROM journal_events WHERE id = NEW.economic_event_id;
    IF event_tenant IS NULL OR event_tenant != NEW.tenant_id THEN
        RAISE EXCEPTION 'JOURNAL_TENANT_ISOLATION: posting % crosses tenant boundary', NEW.id;
    END IF;

    INSERT INTO journal_tenant_sequences (tenant_id, next_seq)
    VALUES (NEW.tenant_id, 2)
    ON CONFLICT (tenant_id) DO UPDATE SET next_seq = journal_tenant_sequences.next_seq + 1
    RETURNING next_seq - 1 INTO NEW.sequence_number;

    IF NEW.account_code = 'CASH' THEN
        INSERT INTO journal_account_balances (tenant_id, account_code, balance_units, updated_at)
        VALUES (NEW.tenant_id, NEW.account_code,
                CASE WHEN NEW.direction = 'DEBIT' THEN NEW.amount_units ELSE -NEW.amount_units END,
                NOW())
        ON CONFLICT (tenant_id, account_code) DO UPDATE SET
            balance_units = journal_account_balances.balance_units +
                CASE WHEN NEW.direction = 'DEBIT' THEN NEW.amount_units ELSE -NEW.amount_units END,
            updated_at = NOW();

        IF (SELECT balance_units FROM journal_account_balances
            WHERE tenant_id = NEW.tenant_id AND account_code = NEW.account_code) < 0 THEN
            RAISE EXCEPTION 'JOURNAL_INSOLVENT: cash balance for tenant % would go negative', NEW.tenant_id;
        END IF;
    END IF;

    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_journal_postings_guard ON journal_postings;
CREATE TRIGGER trg_journal_postings_guard
    BEFORE INSERT ON journal_postings
    FOR EACH ROW EXECUTE FUNCTION journal_postings_guard();

-- Committed postings are append-only.
CREATE OR REPLACE FUNCTION journal_postings_freeze() RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION 'JOURNAL_IMMUTABLE: postings cannot be modified or deleted';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_journal_postings_freeze ON journal_postings;
CREATE TRIGGER trg_journal_postings_freeze
    BEFORE UPDATE OR DELETE ON journal_postings
    FOR EACH ROW EXECUTE FUNCTION journal_postings_freeze();

-- Deferred to commit so the full posting set of an event is visible:
-- debits must equal credits and both sides must be present.
CREATE OR REPLACE FUNCTION journal_postings_balance() RETURNS TRIGGER AS $$
DECLARE
    debit_total  BIGINT;
    credit_total BIGINT;
BEGIN
    SELECT
        COALESCE(SUM(amount_units) FILTER (WHERE direction = 'DEBIT'), 0),
        COALESCE(SUM(amount_units) FILTER (WHERE direction = 'CREDIT'), 0)
    INTO debit_total, credit_total
    FROM journal_postings
    WHERE economic_event_id = NEW.economic_event_id;

    IF debit_total = 0 OR credit_total = 0 THEN
        RAISE EXCEPTION 'JOURNAL_INCOMPLETE: event % has a one-sided posting set', NEW.economic_event_id;
    END IF;
    IF debit_total != credit_total THEN
        RAISE EXCEPTION 'JOURNAL_IMBALANCED: event % debits % != credits %',
            NEW.economic_event_id, debit_total, credit_total;
    END IF;

    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_journal_postings_balance ON journal_postings;
CREATE CONSTRAINT TRIGGER trg_journal_postings_balance
    AFTER INSERT ON journal_postings
    DEFERRABLE INITIALLY DEFERRED
    FOR EACH ROW EXECUTE FUNCTION journal_postings_balance();
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS journal_postings;
DROP TABLE IF EXISTS journal_tenant_sequences;
DROP TABLE IF EXISTS journal_account_balances;
DROP FUNCTION IF EXISTS journal_postings_guard();
DROP FUNCTION IF EXISTS journal_postings_freeze();
DROP FUNCTION IF EXISTS journal_postings_balance();
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
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    event_version  INT NOT NULL DEFAULT 1,
    payload        JSONB NOT NULL DEFAULT '{}',
    status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PROCESSING', 'PROCESSED', 'FAILED')),
    error          TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at   TIMESTAMPTZ
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
