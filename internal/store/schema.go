package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// schema is shared by both engines. {{date}} and {{ts}} are replaced with the
// engine's column types.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		sub_type TEXT NOT NULL,
		parent_id TEXT REFERENCES accounts(id),
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		cash_flow_category TEXT NOT NULL DEFAULT '',
		balance_cents BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		UNIQUE (tenant_id, code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(tenant_id, parent_id)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		line_no INTEGER NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		debit_cents BIGINT NOT NULL DEFAULT 0 CHECK (debit_cents >= 0),
		credit_cents BIGINT NOT NULL DEFAULT 0 CHECK (credit_cents >= 0),
		entry_date {{date}} NOT NULL,
		description TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		posted_by TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_date ON ledger_entries(tenant_id, account_id, entry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_source ON ledger_entries(tenant_id, source_type, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_transaction ON ledger_entries(transaction_id)`,

	`CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		entry_number TEXT NOT NULL,
		entry_date {{date}} NOT NULL,
		description TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		posted_at {{ts}},
		voided_at {{ts}},
		UNIQUE (tenant_id, entry_number)
	)`,
	`CREATE TABLE IF NOT EXISTS journal_lines (
		journal_entry_id TEXT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		side TEXT NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (journal_entry_id, line_no)
	)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		customer TEXT NOT NULL DEFAULT '',
		issue_date {{date}} NOT NULL,
		due_date {{date}} NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		tax_cents BIGINT NOT NULL,
		total_cents BIGINT NOT NULL,
		amount_paid_cents BIGINT NOT NULL DEFAULT 0,
		balance_due_cents BIGINT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_date ON invoices(tenant_id, issue_date)`,

	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		expense_date {{date}} NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		vendor TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL,
		tax_cents BIGINT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL REFERENCES accounts(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_tenant_date ON expenses(tenant_id, expense_date)`,

	`CREATE TABLE IF NOT EXISTS vendor_bills (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		vendor TEXT NOT NULL DEFAULT '',
		issue_date {{date}} NOT NULL,
		total_cents BIGINT NOT NULL,
		tax_cents BIGINT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vendor_bills_tenant_date ON vendor_bills(tenant_id, issue_date)`,

	`CREATE TABLE IF NOT EXISTS bank_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		txn_date {{date}} NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		matched_entry_id TEXT REFERENCES ledger_entries(id),
		imported_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_transactions_account ON bank_transactions(account_id, status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bank_transactions_matched ON bank_transactions(matched_entry_id) WHERE matched_entry_id IS NOT NULL`,
}

// appendOnly rejects UPDATE and DELETE on ledger_entries.
var appendOnly = map[Dialect][]string{
	SQLite: {
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
	},
	Postgres: {
		`CREATE OR REPLACE FUNCTION ledger_entries_append_only() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'ledger entries are append-only';
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries`,
		`CREATE TRIGGER ledger_entries_append_only BEFORE UPDATE OR DELETE ON ledger_entries
		FOR EACH ROW EXECUTE FUNCTION ledger_entries_append_only()`,
	},
}

func (d Dialect) columnTypes() *strings.Replacer {
	if d == Postgres {
		return strings.NewReplacer("{{date}}", "DATE", "{{ts}}", "TIMESTAMPTZ")
	}
	return strings.NewReplacer("{{date}}", "TEXT", "{{ts}}", "TIMESTAMP")
}

// Migrate creates the ledger tables if they do not exist. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	types := s.dialect.columnTypes()
	statements := make([]string, 0, len(schema)+3)
	for _, stmt := range schema {
		statements = append(statements, types.Replace(stmt))
	}
	statements = append(statements, appendOnly[s.dialect]...)

	err := s.run(ctx, false, readTimeout, func(t *tx) error {
		for i, stmt := range statements {
			if _, err := t.c.exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.logger.Info("migrations_applied", slog.String("dialect", string(s.dialect)), slog.Int("statements", len(statements)))
	return nil
}
