package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/gl-core/internal/ledger"
)

const bankColumns = `b.id, b.account_id, a.tenant_id, b.txn_date, b.description, b.amount_cents, b.reference,
	b.status, b.matched_entry_id, b.imported_at`

const bankFrom = ` FROM bank_transactions b JOIN accounts a ON a.id = b.account_id`

func scanBankTransaction(r row) (*ledger.BankTransaction, error) {
	var (
		bt             ledger.BankTransaction
		date, imported dbTime
		amount         int64
		matched        sql.NullString
	)
	err := r.Scan(&bt.ID, &bt.AccountID, &bt.TenantID, &date, &bt.Description, &amount, &bt.Reference,
		&bt.Status, &matched, &imported)
	if err != nil {
		return nil, err
	}
	bt.Date = date.Time
	bt.Amount = fromCents(amount)
	bt.MatchedEntryID = matched.String
	bt.ImportedAt = imported.Time
	return &bt, nil
}

func (t *tx) InsertBankTransactions(ctx context.Context, txns []*ledger.BankTransaction) error {
	for i, bt := range txns {
		_, err := t.exec(ctx, `INSERT INTO bank_transactions (id, account_id, txn_date, description, amount_cents,
			reference, status, matched_entry_id, imported_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			bt.ID, bt.AccountID, t.dialect.date(bt.Date), bt.Description, toCents(bt.Amount),
			bt.Reference, string(bt.Status), nullable(bt.MatchedEntryID), bt.ImportedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert bank transaction %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *tx) GetBankTransaction(ctx context.Context, id string) (*ledger.BankTransaction, error) {
	bt, err := scanBankTransaction(t.queryRow(ctx, `SELECT `+bankColumns+bankFrom+` WHERE b.id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrBankTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get bank transaction: %w", err)
	}
	return bt, nil
}

func (t *tx) UpdateBankMatch(ctx context.Context, bt *ledger.BankTransaction) error {
	n, err := t.exec(ctx, `UPDATE bank_transactions SET status = ?, matched_entry_id = ? WHERE id = ?`,
		string(bt.Status), nullable(bt.MatchedEntryID), bt.ID)
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("entry %s: %w", bt.MatchedEntryID, ledger.ErrAlreadyMatched)
		}
		return fmt.Errorf("failed to update bank transaction: %w", err)
	}
	if n == 0 {
		return ledger.ErrBankTransactionNotFound
	}
	return nil
}

func (t *tx) ListBankTransactions(ctx context.Context, accountID string, status ledger.BankStatus) ([]*ledger.BankTransaction, error) {
	rs, err := t.query(ctx, `SELECT `+bankColumns+bankFrom+` WHERE b.account_id = ? AND b.status = ?
		ORDER BY b.txn_date, b.imported_at, b.id`, accountID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	defer rs.Close()

	txns := []*ledger.BankTransaction{}
	for rs.Next() {
		bt, err := scanBankTransaction(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}
		txns = append(txns, bt)
	}
	return txns, rs.Err()
}

func (t *tx) FindMatchByEntry(ctx context.Context, entryID string) (*ledger.BankTransaction, error) {
	bt, err := scanBankTransaction(t.queryRow(ctx, `SELECT `+bankColumns+bankFrom+` WHERE b.matched_entry_id = ?`, entryID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find bank match: %w", err)
	}
	return bt, nil
}
