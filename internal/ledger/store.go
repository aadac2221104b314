package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence port of the ledger. Every read and write happens
// inside a transaction obtained from Store.
type Store interface {
	// InTx runs fn in a serializable read-write transaction. Implementations
	// retry fn on transient serialization failures, so fn must not have side
	// effects outside tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// ReadTx runs fn in a read-only transaction that sees one snapshot.
	ReadTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a store transaction. All
// lookups are scoped to a tenant; an id belonging to another tenant is
// reported as not found.
type Tx interface {
	AccountTx
	EntryTx
	JournalTx
	DocumentTx
	BankTx
}

// AccountTx covers the accounts table.
type AccountTx interface {
	GetAccount(ctx context.Context, tenantID, id string) (*Account, error)
	GetAccountByCode(ctx context.Context, tenantID, code string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*Account, error)
	// InsertAccount fails with ErrDuplicateCode when (tenant, code) exists.
	InsertAccount(ctx context.Context, a *Account) error
	// InsertAccountIfAbsent inserts a unless (tenant, code) exists and
	// reports whether a row was created.
	InsertAccountIfAbsent(ctx context.Context, a *Account) (bool, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, tenantID, id string) error
	CountChildren(ctx context.Context, tenantID, id string) (int, error)
	// LockAccounts takes row locks on the given accounts for the rest of the
	// transaction.
	LockAccounts(ctx context.Context, tenantID string, ids []string) error
	SetAccountBalance(ctx context.Context, tenantID, id string, balance decimal.Decimal) error
}

// EntryFilter narrows ListEntries. Zero fields do not filter.
type EntryFilter struct {
	TenantID      string
	AccountID     string
	TransactionID string
	SourceType    SourceType
	SourceIDs     []string
	From          time.Time
	To            time.Time
}

// AccountTotals is the sum of one account's ledger rows over a date range.
type AccountTotals struct {
	AccountID string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns Debit - Credit.
func (t AccountTotals) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// EntryTx covers the append-only ledger_entries table.
type EntryTx interface {
	InsertEntries(ctx context.Context, entries []*LedgerEntry) error
	GetEntry(ctx context.Context, tenantID, id string) (*LedgerEntry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]*LedgerEntry, error)
	CountEntries(ctx context.Context, tenantID, accountID string) (int, error)
	// SumAccount sums every ledger row of one account.
	SumAccount(ctx context.Context, tenantID, accountID string) (AccountTotals, error)
	// TotalsByAccount sums debit and credit per account for entries dated in
	// [from, to]. A zero from means no lower bound.
	TotalsByAccount(ctx context.Context, tenantID string, from, to time.Time) ([]AccountTotals, error)
	// TotalsByTransaction sums debit and credit per transaction id.
	TotalsByTransaction(ctx context.Context, tenantID string) (map[string]AccountTotals, error)
}

// JournalTx covers journal_entries and journal_lines.
type JournalTx interface {
	// LastJournalSequence returns the highest JE-nnnnn sequence used by the
	// tenant, or 0.
	LastJournalSequence(ctx context.Context, tenantID string) (int, error)
	InsertJournalEntry(ctx context.Context, je *JournalEntry) error
	GetJournalEntry(ctx context.Context, tenantID, id string) (*JournalEntry, error)
	ListJournalEntries(ctx context.Context, tenantID string) ([]*JournalEntry, error)
	UpdateJournalStatus(ctx context.Context, je *JournalEntry) error
	DeleteJournalEntry(ctx context.Context, tenantID, id string) error
}

// VATTotals sums the tax-relevant amounts of a set of documents.
type VATTotals struct {
	Count   int
	Taxable decimal.Decimal
	Tax     decimal.Decimal
	Gross   decimal.Decimal
}

// DocumentTx covers the business documents the posting recipes consume.
type DocumentTx interface {
	GetInvoice(ctx context.Context, tenantID, id string) (*Invoice, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	InsertExpense(ctx context.Context, e *ExpenseRecord) error
	GetBill(ctx context.Context, tenantID, id string) (*VendorBill, error)
	InsertBill(ctx context.Context, b *VendorBill) error
	UpdateBill(ctx context.Context, b *VendorBill) error
	// InvoiceVAT sums invoices dated in range whose status is not DRAFT or
	// CANCELLED.
	InvoiceVAT(ctx context.Context, tenantID string, from, to time.Time) (VATTotals, error)
	ExpenseVAT(ctx context.Context, tenantID string, from, to time.Time) (VATTotals, error)
	// BillVAT sums non-draft vendor bills dated in range.
	BillVAT(ctx context.Context, tenantID string, from, to time.Time) (VATTotals, error)
}

// BankTx covers bank_transactions.
type BankTx interface {
	InsertBankTransactions(ctx context.Context, txns []*BankTransaction) error
	// GetBankTransaction looks a transaction up by id alone and fills
	// TenantID from its account, so callers can check ownership.
	GetBankTransaction(ctx context.Context, id string) (*BankTransaction, error)
	UpdateBankMatch(ctx context.Context, bt *BankTransaction) error
	ListBankTransactions(ctx context.Context, accountID string, status BankStatus) ([]*BankTransaction, error)
	// FindMatchByEntry returns the bank transaction linked to entryID, or
	// nil when none is.
	FindMatchByEntry(ctx context.Context, entryID string) (*BankTransaction, error)
}
