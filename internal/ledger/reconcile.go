package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/gl-core/pkg/audit"
)

// Reconciler pairs imported bank transactions with ledger entries.
type Reconciler struct {
	store Store
	opts  Options
}

// NewReconciler creates a reconciler backed by store.
func NewReconciler(store Store, opts Options) *Reconciler {
	return &Reconciler{store: store, opts: opts.withDefaults()}
}

// BankStatementLine is one already parsed bank statement row.
type BankStatementLine struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
}

// Import stores statement lines as PENDING bank transactions of accountID.
func (r *Reconciler) Import(ctx context.Context, tenantID, actor, accountID string, lines []BankStatementLine) ([]*BankTransaction, error) {
	if len(lines) == 0 {
		return nil, validationf("statement has no lines")
	}
	now := r.opts.Now().UTC()
	txns := make([]*BankTransaction, 0, len(lines))
	for i, l := range lines {
		if l.Date.IsZero() {
			return nil, validationf("statement line %d: date is required", i+1)
		}
		if l.Amount.IsZero() || !hasAtMostTwoDecimals(l.Amount) {
			return nil, validationf("statement line %d: amount must be non-zero with at most two decimals", i+1)
		}
		txns = append(txns, &BankTransaction{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			TenantID:    tenantID,
			Date:        Day(l.Date),
			Description: l.Description,
			Amount:      l.Amount,
			Reference:   l.Reference,
			Status:      BankPending,
			ImportedAt:  now,
		})
	}
	err := r.store.InTx(ctx, func(tx Tx) error {
		if _, err := requireAssetAccount(ctx, tx, tenantID, accountID); err != nil {
			return err
		}
		return tx.InsertBankTransactions(ctx, txns)
	})
	if err != nil {
		return nil, fmt.Errorf("import statement: %w", err)
	}
	r.opts.Logger.Info("bank_statement_imported", slog.String("tenant_id", tenantID), slog.String("account_id", accountID), slog.Int("lines", len(txns)))
	r.record(ctx, "bank.imported", tenantID, actor, accountID, map[string]any{"lines": len(txns)})
	return txns, nil
}

// Match links a bank transaction to a ledger entry of the same account. A
// deposit must equal the entry's debit and a withdrawal its credit.
func (r *Reconciler) Match(ctx context.Context, tenantID, actor, bankTxID, entryID string) (*BankTransaction, error) {
	var bt *BankTransaction
	err := r.store.InTx(ctx, func(tx Tx) error {
		var err error
		bt, err = tx.GetBankTransaction(ctx, bankTxID)
		if err != nil {
			return err
		}
		if bt.TenantID != tenantID {
			return ErrTenantMismatch
		}
		entry, err := tx.GetEntry(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if entry.AccountID != bt.AccountID {
			return ErrAccountMismatch
		}
		if bt.Status == BankMatched && bt.MatchedEntryID == entry.ID {
			return nil
		}
		if bt.Status == BankMatched {
			return fmt.Errorf("bank transaction %s is matched to entry %s: %w", bt.ID, bt.MatchedEntryID, ErrAlreadyMatched)
		}
		existing, err := tx.FindMatchByEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != bt.ID {
			return fmt.Errorf("entry %s is matched to bank transaction %s: %w", entry.ID, existing.ID, ErrAlreadyMatched)
		}

		side := entry.Debit
		if bt.Amount.IsNegative() {
			side = entry.Credit
		}
		if !withinTolerance(bt.Amount.Abs(), side) {
			return &AmountMismatchError{Bank: bt.Amount.Abs(), Ledger: side}
		}

		bt.Status = BankMatched
		bt.MatchedEntryID = entry.ID
		return tx.UpdateBankMatch(ctx, bt)
	})
	if err != nil {
		return nil, fmt.Errorf("match bank transaction %s: %w", bankTxID, err)
	}
	r.opts.Logger.Info("bank_transaction_matched", slog.String("tenant_id", tenantID), slog.String("bank_transaction_id", bt.ID), slog.String("entry_id", entryID))
	r.record(ctx, "bank.matched", tenantID, actor, bt.ID, map[string]any{"entryId": entryID})
	return bt, nil
}

// Unmatch clears a bank transaction's link. Unmatching a PENDING
// transaction is a no-op.
func (r *Reconciler) Unmatch(ctx context.Context, tenantID, actor, bankTxID string) (*BankTransaction, error) {
	var (
		bt      *BankTransaction
		changed bool
	)
	err := r.store.InTx(ctx, func(tx Tx) error {
		var err error
		bt, err = tx.GetBankTransaction(ctx, bankTxID)
		if err != nil {
			return err
		}
		if bt.TenantID != tenantID {
			return ErrTenantMismatch
		}
		changed = bt.Status != BankPending || bt.MatchedEntryID != ""
		if !changed {
			return nil
		}
		bt.Status = BankPending
		bt.MatchedEntryID = ""
		return tx.UpdateBankMatch(ctx, bt)
	})
	if err != nil {
		return nil, fmt.Errorf("unmatch bank transaction %s: %w", bankTxID, err)
	}
	if changed {
		r.record(ctx, "bank.unmatched", tenantID, actor, bt.ID, nil)
	}
	return bt, nil
}

// ReconciliationView is what an operator needs to reconcile one account.
type ReconciliationView struct {
	AccountID        string             `json:"accountId"`
	PendingBank      []*BankTransaction `json:"pendingBankTransactions"`
	UnmatchedEntries []*LedgerEntry     `json:"unmatchedEntries"`
	SystemBalance    decimal.Decimal    `json:"systemBalance"`
}

// Difference compares an externally reported statement balance with the
// ledger and returns statement minus system.
func (v *ReconciliationView) Difference(statementBalance decimal.Decimal) decimal.Decimal {
	return statementBalance.Sub(v.SystemBalance)
}

// View returns pending bank transactions, unmatched ledger entries and the
// ledger balance of accountID.
func (r *Reconciler) View(ctx context.Context, tenantID, accountID string) (*ReconciliationView, error) {
	view := &ReconciliationView{AccountID: accountID}
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		if _, err := tx.GetAccount(ctx, tenantID, accountID); err != nil {
			return err
		}
		pending, err := tx.ListBankTransactions(ctx, accountID, BankPending)
		if err != nil {
			return err
		}
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].Date.Before(pending[j].Date) })
		view.PendingBank = pending

		matched, err := tx.ListBankTransactions(ctx, accountID, BankMatched)
		if err != nil {
			return err
		}
		linked := make(map[string]bool, len(matched))
		for _, m := range matched {
			linked[m.MatchedEntryID] = true
		}

		entries, err := tx.ListEntries(ctx, EntryFilter{TenantID: tenantID, AccountID: accountID})
		if err != nil {
			return err
		}
		view.UnmatchedEntries = make([]*LedgerEntry, 0, len(entries))
		for _, e := range entries {
			if !linked[e.ID] {
				view.UnmatchedEntries = append(view.UnmatchedEntries, e)
			}
		}

		totals, err := tx.SumAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		view.SystemBalance = totals.Net()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation view for %s: %w", accountID, err)
	}
	return view, nil
}

func (r *Reconciler) record(ctx context.Context, action, tenantID, actor, entityID string, details map[string]any) {
	recordAudit(ctx, r.opts, audit.Event{
		Action:     action,
		TenantID:   tenantID,
		Actor:      actor,
		EntityType: "bank_transaction",
		EntityID:   entityID,
		Details:    details,
	})
}
