package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/gl-core/internal/ledger"
)

const entryColumns = `id, tenant_id, transaction_id, account_id, debit_cents, credit_cents, entry_date,
	description, reference, source_type, source_id, posted_by, created_at`

func scanEntry(r row) (*ledger.LedgerEntry, error) {
	var (
		e               ledger.LedgerEntry
		debit, credit   int64
		date, createdAt dbTime
	)
	err := r.Scan(&e.ID, &e.TenantID, &e.TransactionID, &e.AccountID, &debit, &credit, &date,
		&e.Description, &e.Reference, &e.SourceType, &e.SourceID, &e.PostedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Debit = fromCents(debit)
	e.Credit = fromCents(credit)
	e.Date = date.Time
	e.CreatedAt = createdAt.Time
	return &e, nil
}

func (t *tx) InsertEntries(ctx context.Context, entries []*ledger.LedgerEntry) error {
	for i, e := range entries {
		_, err := t.exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`, line_no)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TenantID, e.TransactionID, e.AccountID, toCents(e.Debit), toCents(e.Credit), t.dialect.date(e.Date),
			e.Description, e.Reference, string(e.SourceType), e.SourceID, e.PostedBy, e.CreatedAt.UTC(), i+1)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *tx) GetEntry(ctx context.Context, tenantID, id string) (*ledger.LedgerEntry, error) {
	e, err := scanEntry(t.queryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// entryWhere builds the WHERE clause for an EntryFilter.
func (t *tx) entryWhere(f ledger.EntryFilter) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{f.TenantID}
	if f.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.TransactionID != "" {
		clauses = append(clauses, "transaction_id = ?")
		args = append(args, f.TransactionID)
	}
	if f.SourceType != "" {
		clauses = append(clauses, "source_type = ?")
		args = append(args, string(f.SourceType))
	}
	if len(f.SourceIDs) > 0 {
		clauses = append(clauses, "source_id IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(f.SourceIDs)), ", ")+")")
		for _, id := range f.SourceIDs {
			args = append(args, id)
		}
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "entry_date >= ?")
		args = append(args, t.dialect.date(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "entry_date <= ?")
		args = append(args, t.dialect.date(f.To))
	}
	return strings.Join(clauses, " AND "), args
}

func (t *tx) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]*ledger.LedgerEntry, error) {
	where, args := t.entryWhere(f)
	rs, err := t.query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE `+where+`
		ORDER BY entry_date, created_at, transaction_id, line_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rs.Close()

	var entries []*ledger.LedgerEntry
	for rs.Next() {
		e, err := scanEntry(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rs.Err()
}

func (t *tx) CountEntries(ctx context.Context, tenantID, accountID string) (int, error) {
	n, err := t.count(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE tenant_id = ? AND account_id = ?`, tenantID, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

// Sums are cast so PostgreSQL returns BIGINT instead of NUMERIC.
const sumColumns = `CAST(COALESCE(SUM(debit_cents), 0) AS BIGINT), CAST(COALESCE(SUM(credit_cents), 0) AS BIGINT)`

func (t *tx) SumAccount(ctx context.Context, tenantID, accountID string) (ledger.AccountTotals, error) {
	var debit, credit int64
	err := t.queryRow(ctx, `SELECT `+sumColumns+` FROM ledger_entries WHERE tenant_id = ? AND account_id = ?`,
		tenantID, accountID).Scan(&debit, &credit)
	if err != nil {
		return ledger.AccountTotals{}, fmt.Errorf("failed to sum account: %w", err)
	}
	return ledger.AccountTotals{AccountID: accountID, Debit: fromCents(debit), Credit: fromCents(credit)}, nil
}

func (t *tx) TotalsByAccount(ctx context.Context, tenantID string, from, to time.Time) ([]ledger.AccountTotals, error) {
	where, args := t.entryWhere(ledger.EntryFilter{TenantID: tenantID, From: from, To: to})
	return t.totals(ctx, `SELECT account_id, `+sumColumns+` FROM ledger_entries WHERE `+where+`
		GROUP BY account_id ORDER BY account_id`, args...)
}

func (t *tx) TotalsByTransaction(ctx context.Context, tenantID string) (map[string]ledger.AccountTotals, error) {
	totals, err := t.totals(ctx, `SELECT transaction_id, `+sumColumns+` FROM ledger_entries WHERE tenant_id = ?
		GROUP BY transaction_id`, tenantID)
	if err != nil {
		return nil, err
	}
	byTxn := make(map[string]ledger.AccountTotals, len(totals))
	for _, tt := range totals {
		byTxn[tt.AccountID] = tt
	}
	return byTxn, nil
}

// totals scans (key, debit, credit) rows; the key lands in AccountID.
func (t *tx) totals(ctx context.Context, query string, args ...any) ([]ledger.AccountTotals, error) {
	rs, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	defer rs.Close()

	var out []ledger.AccountTotals
	for rs.Next() {
		var (
			key           string
			debit, credit int64
		)
		if err := rs.Scan(&key, &debit, &credit); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		out = append(out, ledger.AccountTotals{AccountID: key, Debit: fromCents(debit), Credit: fromCents(credit)})
	}
	return out, rs.Err()
}
