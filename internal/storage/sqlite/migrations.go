package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Money columns hold integer minor units; currency is stored alongside.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    currency TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    name TEXT NOT NULL,
    email TEXT,
    role TEXT NOT NULL DEFAULT 'member',
    joined_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, member_id),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    total INTEGER NOT NULL CHECK (total > 0),
    currency TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT,
    policy TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'pending',
    created_by TEXT NOT NULL,
    decided_by TEXT,
    decided_at INTEGER,
    occurred_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    recurring_id TEXT,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_shares (
    expense_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount >= 0),
    percentage TEXT,
    PRIMARY KEY (expense_id, member_id),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    payee_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    method TEXT NOT NULL,
    note TEXT,
    gateway_reference TEXT UNIQUE,
    checkout_url TEXT,
    idempotency_key TEXT,
    fingerprint TEXT,
    state TEXT NOT NULL DEFAULT 'pending',
    created_by TEXT NOT NULL,
    decided_by TEXT,
    decided_at INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS recurring_expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    total INTEGER NOT NULL CHECK (total > 0),
    currency TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT,
    policy TEXT NOT NULL,
    frequency TEXT NOT NULL,
    repeat_every INTEGER NOT NULL DEFAULT 1,
    start_at INTEGER NOT NULL,
    end_at INTEGER,
    next_at INTEGER NOT NULL,
    paused INTEGER NOT NULL DEFAULT 0,
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    last_run_at INTEGER,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS recurring_shares (
    recurring_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    amount INTEGER NOT NULL DEFAULT 0,
    percentage TEXT,
    PRIMARY KEY (recurring_id, member_id),
    FOREIGN KEY (recurring_id) REFERENCES recurring_expenses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);
CREATE INDEX IF NOT EXISTS idx_expenses_group_state ON expenses(group_id, state);
CREATE INDEX IF NOT EXISTS idx_expense_shares_expense_id ON expense_shares(expense_id);
CREATE INDEX IF NOT EXISTS idx_payments_group_state ON payments(group_id, state);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idempotency ON payments(group_id, idempotency_key)
    WHERE idempotency_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_recurring_next_at ON recurring_expenses(next_at) WHERE paused = 0;
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
