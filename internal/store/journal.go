package store

import (
	"context"
	"fmt"

	"github.com/example/gl-core/internal/ledger"
)

const journalColumns = `id, tenant_id, entry_number, entry_date, description, reference, status,
	created_by, created_at, posted_at, voided_at`

func scanJournalEntry(r row) (*ledger.JournalEntry, error) {
	var (
		je                                  ledger.JournalEntry
		date, createdAt, postedAt, voidedAt dbTime
	)
	err := r.Scan(&je.ID, &je.TenantID, &je.EntryNumber, &date, &je.Description, &je.Reference, &je.Status,
		&je.CreatedBy, &createdAt, &postedAt, &voidedAt)
	if err != nil {
		return nil, err
	}
	je.Date = date.Time
	je.CreatedAt = createdAt.Time
	je.PostedAt = postedAt.ptr()
	je.VoidedAt = voidedAt.ptr()
	return &je, nil
}

// LastJournalSequence parses the numeric suffix of JE-nnnnn numbers.
func (t *tx) LastJournalSequence(ctx context.Context, tenantID string) (int, error) {
	n, err := t.count(ctx, `SELECT COALESCE(MAX(CAST(SUBSTR(entry_number, 4) AS INTEGER)), 0)
		FROM journal_entries WHERE tenant_id = ? AND entry_number LIKE 'JE-%'`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to read journal sequence: %w", err)
	}
	return n, nil
}

func (t *tx) InsertJournalEntry(ctx context.Context, je *ledger.JournalEntry) error {
	_, err := t.exec(ctx, `INSERT INTO journal_entries (`+journalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		je.ID, je.TenantID, je.EntryNumber, t.dialect.date(je.Date), je.Description, je.Reference, string(je.Status),
		je.CreatedBy, je.CreatedAt.UTC(), nullTime(je.PostedAt), nullTime(je.VoidedAt))
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("journal entry number %s already used: %w", je.EntryNumber, errSequenceTaken)
		}
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	for i, l := range je.Lines {
		_, err := t.exec(ctx, `INSERT INTO journal_lines (journal_entry_id, line_no, account_id, side, amount_cents, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			je.ID, i+1, l.AccountID, string(l.Side), toCents(l.Amount), l.Description)
		if err != nil {
			return fmt.Errorf("failed to insert journal line %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *tx) journalLines(ctx context.Context, id string) ([]ledger.JournalLine, error) {
	rs, err := t.query(ctx, `SELECT account_id, side, amount_cents, description FROM journal_lines
		WHERE journal_entry_id = ? ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal lines: %w", err)
	}
	defer rs.Close()

	lines := []ledger.JournalLine{}
	for rs.Next() {
		var (
			l      ledger.JournalLine
			amount int64
		)
		if err := rs.Scan(&l.AccountID, &l.Side, &amount, &l.Description); err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		l.Amount = fromCents(amount)
		lines = append(lines, l)
	}
	return lines, rs.Err()
}

func (t *tx) GetJournalEntry(ctx context.Context, tenantID, id string) (*ledger.JournalEntry, error) {
	je, err := scanJournalEntry(t.queryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries
		WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrJournalEntryNotFound
		}
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	if je.Lines, err = t.journalLines(ctx, je.ID); err != nil {
		return nil, err
	}
	return je, nil
}

func (t *tx) ListJournalEntries(ctx context.Context, tenantID string) ([]*ledger.JournalEntry, error) {
	rs, err := t.query(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE tenant_id = ?
		ORDER BY entry_date DESC, entry_number DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	var entries []*ledger.JournalEntry
	for rs.Next() {
		je, err := scanJournalEntry(rs)
		if err != nil {
			rs.Close()
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, je)
	}
	rs.Close()
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	// Lines are loaded after the cursor is closed; one connection cannot
	// interleave two result sets.
	for _, je := range entries {
		if je.Lines, err = t.journalLines(ctx, je.ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (t *tx) UpdateJournalStatus(ctx context.Context, je *ledger.JournalEntry) error {
	n, err := t.exec(ctx, `UPDATE journal_entries SET status = ?, posted_at = ?, voided_at = ?
		WHERE tenant_id = ? AND id = ?`,
		string(je.Status), nullTime(je.PostedAt), nullTime(je.VoidedAt), je.TenantID, je.ID)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	if n == 0 {
		return ledger.ErrJournalEntryNotFound
	}
	return nil
}

func (t *tx) DeleteJournalEntry(ctx context.Context, tenantID, id string) error {
	_, err := t.exec(ctx, `DELETE FROM journal_lines WHERE journal_entry_id IN
		(SELECT id FROM journal_entries WHERE tenant_id = ? AND id = ?)`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete journal lines: %w", err)
	}
	n, err := t.exec(ctx, `DELETE FROM journal_entries WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete journal entry: %w", err)
	}
	if n == 0 {
		return ledger.ErrJournalEntryNotFound
	}
	return nil
}
