package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
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
    splits      JSONB NOT NULL DEFAULT '[]',
    group_id    TEXT NOT NULL DEFAULT '',
    pair_key    TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT 'manual',
    created_by  TEXT NOT NULL DEFAULT '',
    settled     BOOLEAN NOT NULL DEFAULT FALSE,
    settled_at  TIMESTAMPTZ,
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_expenses_group ON tally_expenses (group_id, currency, settled) WHERE group_id != '';
CREATE INDEX IF NOT EXISTS idx_tally_expenses_pair ON tally_expenses (pair_key, currency, settled) WHERE group_id = '';
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
    before     JSONB NOT NULL,
    after      JSONB,
    edited_by  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    can_send           BOOLEAN NOT NULL DEFAULT FALSE,
    can_receive        BOOLEAN NOT NULL DEFAULT FALSE,
    currencies         JSONB NOT NULL DEFAULT '[]',
    status             TEXT NOT NULL DEFAULT 'active',
    is_default_send    BOOLEAN NOT NULL DEFAULT FALSE,
    is_default_receive BOOLEAN NOT NULL DEFAULT FALSE,
    metadata           JSONB NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
			Name:    "create_tally_balances",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_balances (
    instrument_id TEXT NOT NULL,
    currency      TEXT NOT NULL,
    available     BIGINT NOT NULL DEFAULT 0,
    pending       BIGINT NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (instrument_id, currency),
    CONSTRAINT chk_tally_balances_non_negative CHECK (available >= 0 AND pending >= 0)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_transactions",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_transactions (
    id              TEXT PRIMARY KEY,
    instrument_id   TEXT NOT NULL,
    currency        TEXT NOT NULL,
    amount          BIGINT NOT NULL,
    kind            TEXT NOT NULL,
    bucket          TEXT NOT NULL,
    available_after BIGINT NOT NULL,
    pending_after   BIGINT NOT NULL,
    origin_id       TEXT NOT NULL DEFAULT '',
    note            TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_tx_instrument ON tally_transactions (instrument_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_tally_tx_created ON tally_transactions (created_at DESC, id DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_transactions`)
				return err
			},
		},
	)
}
