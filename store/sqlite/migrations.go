package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
//
// Balances are never written directly: every journal row carries the
// balance after it, and a trigger copies that into tally_balances. A
// transfer is one row in tally_transfers whose trigger writes both journal
// rows. SQLite runs a statement together with its triggers atomically.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_expenses",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_expenses (
    id          TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    amount      TEXT NOT NULL,
    currency    TEXT NOT NULL,
    type        TEXT NOT NULL DEFAULT 'expense',
    split_mode  TEXT NOT NULL DEFAULT 'equal',
    splits      TEXT NOT NULL DEFAULT '[]',
    group_id    TEXT NOT NULL DEFAULT '',
    pair_key    TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT 'manual',
    created_by  TEXT NOT NULL DEFAULT '',
    settled     INTEGER NOT NULL DEFAULT 0,
    settled_at  DATETIME,
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tally_expenses_group ON tally_expenses (group_id, currency, settled);
CREATE INDEX IF NOT EXISTS idx_tally_expenses_pair ON tally_expenses (pair_key, currency, settled);
CREATE INDEX IF NOT EXISTS idx_tally_expenses_created ON tally_expenses (created_at, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_expenses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_expense_revisions",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_expense_revisions (
    id         TEXT PRIMARY KEY,
    expense_id TEXT NOT NULL,
    before     TEXT NOT NULL,
    after      TEXT,
    edited_by  TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tally_revisions_expense ON tally_expense_revisions (expense_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_expense_revisions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_instruments",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_instruments (
    id                 TEXT PRIMARY KEY,
    owner_id           TEXT NOT NULL,
    label              TEXT NOT NULL DEFAULT '',
    type               TEXT NOT NULL DEFAULT 'other',
    can_send           INTEGER NOT NULL DEFAULT 0,
    can_receive        INTEGER NOT NULL DEFAULT 0,
    currencies         TEXT NOT NULL DEFAULT '[]',
    status             TEXT NOT NULL DEFAULT 'active',
    is_default_send    INTEGER NOT NULL DEFAULT 0,
    is_default_receive INTEGER NOT NULL DEFAULT 0,
    metadata           TEXT NOT NULL DEFAULT '{}',
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tally_instruments_owner ON tally_instruments (owner_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_instruments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_ledger",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_balances (
    instrument_id TEXT NOT NULL,
    currency      TEXT NOT NULL,
    available     INTEGER NOT NULL DEFAULT 0 CHECK (available >= 0),
    pending       INTEGER NOT NULL DEFAULT 0 CHECK (pending >= 0),
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (instrument_id, currency)
);

CREATE TABLE IF NOT EXISTS tally_transactions (
    id              TEXT PRIMARY KEY,
    instrument_id   TEXT NOT NULL,
    currency        TEXT NOT NULL,
    amount          INTEGER NOT NULL,
    kind            TEXT NOT NULL,
    bucket          TEXT NOT NULL,
    available_after INTEGER NOT NULL CHECK (available_after >= 0),
    pending_after   INTEGER NOT NULL CHECK (pending_after >= 0),
    origin_id       TEXT NOT NULL DEFAULT '',
    note            TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tally_tx_instrument ON tally_transactions (instrument_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_tally_tx_created ON tally_transactions (created_at, id);

CREATE TABLE IF NOT EXISTS tally_transfers (
    id                  TEXT PRIMARY KEY,
    in_tx_id            TEXT NOT NULL,
    currency            TEXT NOT NULL,
    from_id             TEXT NOT NULL,
    to_id               TEXT NOT NULL,
    out_amount          INTEGER NOT NULL,
    out_kind            TEXT NOT NULL,
    out_bucket          TEXT NOT NULL,
    out_available_after INTEGER NOT NULL,
    out_pending_after   INTEGER NOT NULL,
    out_created_at      DATETIME NOT NULL,
    in_amount           INTEGER NOT NULL,
    in_kind             TEXT NOT NULL,
    in_bucket           TEXT NOT NULL,
    in_available_after  INTEGER NOT NULL,
    in_pending_after    INTEGER NOT NULL,
    in_created_at       DATETIME NOT NULL,
    note                TEXT NOT NULL DEFAULT ''
);

CREATE TRIGGER IF NOT EXISTS trg_tally_tx_balance
AFTER INSERT ON tally_transactions
BEGIN
    INSERT INTO tally_balances (instrument_id, currency, available, pending, updated_at)
    VALUES (NEW.instrument_id, NEW.currency, NEW.available_after, NEW.pending_after, NEW.created_at)
    ON CONFLICT (instrument_id, currency) DO UPDATE SET
        available  = excluded.available,
        pending    = excluded.pending,
        updated_at = excluded.updated_at;
END;

CREATE TRIGGER IF NOT EXISTS trg_tally_transfer_journal
AFTER INSERT ON tally_transfers
BEGIN
    INSERT INTO tally_transactions
        (id, instrument_id, currency, amount, kind, bucket, available_after, pending_after, origin_id, note, created_at)
    VALUES
        (NEW.id, NEW.from_id, NEW.currency, NEW.out_amount, NEW.out_kind, NEW.out_bucket,
         NEW.out_available_after, NEW.out_pending_after, NEW.in_tx_id, NEW.note, NEW.out_created_at);
    INSERT INTO tally_transactions
        (id, instrument_id, currency, amount, kind, bucket, available_after, pending_after, origin_id, note, created_at)
    VALUES
        (NEW.in_tx_id, NEW.to_id, NEW.currency, NEW.in_amount, NEW.in_kind, NEW.in_bucket,
         NEW.in_available_after, NEW.in_pending_after, NEW.id, NEW.note, NEW.in_created_at);
END;

CREATE TRIGGER IF NOT EXISTS trg_tally_instrument_delete
AFTER DELETE ON tally_instruments
BEGIN
    DELETE FROM tally_balances WHERE instrument_id = OLD.id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_tally_instrument_delete;
DROP TRIGGER IF EXISTS trg_tally_transfer_journal;
DROP TRIGGER IF EXISTS trg_tally_tx_balance;
DROP TABLE IF EXISTS tally_transfers;
DROP TABLE IF EXISTS tally_transactions;
DROP TABLE IF EXISTS tally_balances;
`)
				return err
			},
		},
	)
}
