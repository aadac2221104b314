package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference treated as equal when comparing money.
var Tolerance = decimal.New(1, -2)

// DefaultCurrency is used when an account is created without one.
const DefaultCurrency = "AED"

// AccountType is the top-level classification of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Revenue, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether the account type increases on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

// SubType refines AccountType for statement sectioning and cash flow.
type SubType string

const (
	CurrentAsset      SubType = "CURRENT_ASSET"
	FixedAsset        SubType = "FIXED_ASSET"
	OtherAsset        SubType = "OTHER_ASSET"
	CurrentLiability  SubType = "CURRENT_LIABILITY"
	LongTermLiability SubType = "LONG_TERM_LIABILITY"
	EquitySub         SubType = "EQUITY"
	RetainedEarnings  SubType = "RETAINED_EARNINGS"
	OperatingRevenue  SubType = "OPERATING_REVENUE"
	OtherRevenue      SubType = "OTHER_REVENUE"
	CostOfGoodsSold   SubType = "COST_OF_GOODS_SOLD"
	OperatingExpense  SubType = "OPERATING_EXPENSE"
	OtherExpense      SubType = "OTHER_EXPENSE"
)

var subTypesByType = map[AccountType][]SubType{
	Asset:     {CurrentAsset, FixedAsset, OtherAsset},
	Liability: {CurrentLiability, LongTermLiability},
	Equity:    {EquitySub, RetainedEarnings},
	Revenue:   {OperatingRevenue, OtherRevenue},
	Expense:   {CostOfGoodsSold, OperatingExpense, OtherExpense},
}

// BelongsTo reports whether s is a valid subtype of t.
func (s SubType) BelongsTo(t AccountType) bool {
	for _, candidate := range subTypesByType[t] {
		if candidate == s {
			return true
		}
	}
	return false
}

// CashFlowCategory optionally pins an account to a cash-flow section. An
// empty category means the section is inferred from code and subtype.
type CashFlowCategory string

const (
	CashFlowInferred  CashFlowCategory = ""
	CashFlowCash      CashFlowCategory = "CASH"
	CashFlowOperating CashFlowCategory = "OPERATING"
	CashFlowInvesting CashFlowCategory = "INVESTING"
	CashFlowFinancing CashFlowCategory = "FINANCING"
	CashFlowExcluded  CashFlowCategory = "EXCLUDED"
)

// Valid reports whether c is a known category.
func (c CashFlowCategory) Valid() bool {
	switch c {
	case CashFlowInferred, CashFlowCash, CashFlowOperating, CashFlowInvesting, CashFlowFinancing, CashFlowExcluded:
		return true
	}
	return false
}

// Account is a node in a tenant's chart of accounts.
type Account struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenantId"`
	Code             string           `json:"code"`
	Name             string           `json:"name"`
	Type             AccountType      `json:"type"`
	SubType          SubType          `json:"subType"`
	ParentID         string           `json:"parentId,omitempty"`
	Currency         string           `json:"currency"`
	Description      string           `json:"description,omitempty"`
	CashFlowCategory CashFlowCategory `json:"cashFlowCategory,omitempty"`
	Balance          decimal.Decimal  `json:"balance"`
	IsActive         bool             `json:"isActive"`
	IsSystem         bool             `json:"isSystem"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// SourceType tags a ledger entry with the kind of business object behind it.
type SourceType string

const (
	SourceInvoice        SourceType = "INVOICE"
	SourceExpense        SourceType = "EXPENSE"
	SourceJournalEntry   SourceType = "JOURNAL_ENTRY"
	SourceInvoicePayment SourceType = "INVOICE_PAYMENT"
	SourceBill           SourceType = "BILL"
	SourceBillPayment    SourceType = "BILL_PAYMENT"
	SourceManual         SourceType = "MANUAL"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceInvoice, SourceExpense, SourceJournalEntry, SourceInvoicePayment,
		SourceBill, SourceBillPayment, SourceManual:
		return true
	}
	return false
}

// LedgerEntry is one immutable line in the ledger.
type LedgerEntry struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	TransactionID string          `json:"transactionId"`
	AccountID     string          `json:"accountId"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Reference     string          `json:"reference,omitempty"`
	SourceType    SourceType      `json:"sourceType"`
	SourceID      string          `json:"sourceId"`
	PostedBy      string          `json:"postedBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// JournalStatus is the lifecycle state of a manual journal entry.
type JournalStatus string

const (
	JournalDraft  JournalStatus = "DRAFT"
	JournalPosted JournalStatus = "POSTED"
	JournalVoid   JournalStatus = "VOID"
)

// Side is the side of a journal line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// JournalEntry is a manually entered multi-line transaction.
type JournalEntry struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	EntryNumber string        `json:"entryNumber"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	Status      JournalStatus `json:"status"`
	CreatedBy   string        `json:"createdBy"`
	CreatedAt   time.Time     `json:"createdAt"`
	PostedAt    *time.Time    `json:"postedAt,omitempty"`
	VoidedAt    *time.Time    `json:"voidedAt,omitempty"`
	Lines       []JournalLine `json:"lines"`
}

// JournalLine is one line of a JournalEntry.
type JournalLine struct {
	AccountID   string          `json:"accountId"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// BankStatus is the reconciliation state of a bank transaction.
type BankStatus string

const (
	BankPending BankStatus = "PENDING"
	BankMatched BankStatus = "MATCHED"
)

// BankTransaction is an imported bank statement line.
type BankTransaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	TenantID       string          `json:"tenantId"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference,omitempty"`
	Status         BankStatus      `json:"status"`
	MatchedEntryID string          `json:"matchedEntryId,omitempty"`
	ImportedAt     time.Time       `json:"importedAt"`
}

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "DRAFT"
	InvoiceSent          InvoiceStatus = "SENT"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceCancelled     InvoiceStatus = "CANCELLED"
)

// Invoice is the ledger's view of a customer invoice.
type Invoice struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Number     string          `json:"number"`
	Customer   string          `json:"customer"`
	IssueDate  time.Time       `json:"issueDate"`
	DueDate    time.Time       `json:"dueDate"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	BalanceDue decimal.Decimal `json:"balanceDue"`
	Status     InvoiceStatus   `json:"status"`
}

// ExpenseRecord is a recorded business expense.
type ExpenseRecord struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Vendor      string          `json:"vendor,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	Reference   string          `json:"reference,omitempty"`
	AccountID   string          `json:"accountId"`
}

// BillStatus is the state of a vendor bill.
type BillStatus string

const (
	BillDraft BillStatus = "DRAFT"
	BillOpen  BillStatus = "OPEN"
	BillPaid  BillStatus = "PAID"
)

// VendorBill is the ledger's view of a supplier bill.
type VendorBill struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Number    string          `json:"number"`
	Vendor    string          `json:"vendor"`
	IssueDate time.Time       `json:"issueDate"`
	Total     decimal.Decimal `json:"total"`
	Tax       decimal.Decimal `json:"tax"`
	Status    BillStatus      `json:"status"`
}

// Date returns the calendar day y-m-d at UTC midnight.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

func hasAtMostTwoDecimals(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
