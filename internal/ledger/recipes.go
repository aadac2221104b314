package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceIssued is raised when an invoice is sent to a customer.
type InvoiceIssued struct {
	TenantID  string          `json:"tenantId"`
	PostedBy  string          `json:"postedBy"`
	InvoiceID string          `json:"invoiceId"`
	Number    string          `json:"number"`
	Customer  string          `json:"customer"`
	IssueDate time.Time       `json:"issueDate"`
	DueDate   time.Time       `json:"dueDate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	// RevenueAccountCode defaults to the sales revenue code.
	RevenueAccountCode string `json:"revenueAccountCode,omitempty"`
}

// InvoicePaymentReceived is raised when a customer pays an invoice.
type InvoicePaymentReceived struct {
	TenantID  string          `json:"tenantId"`
	PostedBy  string          `json:"postedBy"`
	InvoiceID string          `json:"invoiceId"`
	PaymentID string          `json:"paymentId,omitempty"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference,omitempty"`
}

// ExpenseRecorded is raised when an expense is booked.
type ExpenseRecorded struct {
	TenantID    string          `json:"tenantId"`
	PostedBy    string          `json:"postedBy"`
	ExpenseID   string          `json:"expenseId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Vendor      string          `json:"vendor,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	Reference   string          `json:"reference,omitempty"`
	// AccountID selects the expense account; when empty the operating
	// expenses code is used.
	AccountID string `json:"accountId,omitempty"`
}

// BillItem is one line of a vendor bill.
type BillItem struct {
	AccountID   string          `json:"accountId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
}

// VendorBillPosted is raised when a supplier bill is approved.
type VendorBillPosted struct {
	TenantID  string          `json:"tenantId"`
	PostedBy  string          `json:"postedBy"`
	BillID    string          `json:"billId"`
	Number    string          `json:"number"`
	Vendor    string          `json:"vendor"`
	IssueDate time.Time       `json:"issueDate"`
	Items     []BillItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

// VendorBillPaid is raised when a supplier bill is paid.
type VendorBillPaid struct {
	TenantID  string    `json:"tenantId"`
	PostedBy  string    `json:"postedBy"`
	BillID    string    `json:"billId"`
	AccountID string    `json:"accountId"`
	Date      time.Time `json:"date"`
}

// IssueInvoice posts AR against revenue and VAT payable and marks the
// invoice SENT.
func (e *PostingEngine) IssueInvoice(ctx context.Context, ev InvoiceIssued) (*Invoice, *Posting, error) {
	if err := requireFields(map[string]string{"tenantId": ev.TenantID, "postedBy": ev.PostedBy, "invoiceId": ev.InvoiceID, "number": ev.Number}); err != nil {
		return nil, nil, err
	}
	if ev.Total.LessThanOrEqual(decimal.Zero) || ev.Subtotal.IsNegative() || ev.Tax.IsNegative() {
		return nil, nil, validationf("invoice amounts must be positive")
	}
	if ev.IssueDate.IsZero() {
		return nil, nil, validationf("invoice issue date is required")
	}
	revenueCode := ev.RevenueAccountCode
	if revenueCode == "" {
		revenueCode = e.opts.Codes.SalesRevenue
	}

	var (
		inv     *Invoice
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.GetInvoice(ctx, ev.TenantID, ev.InvoiceID)
		if err != nil && !errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		if existing != nil && existing.Status != InvoiceDraft {
			return fmt.Errorf("invoice %s is %s: %w", ev.Number, existing.Status, ErrAlreadyPosted)
		}
		ar, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.AccountsReceivable)
		if err != nil {
			return err
		}
		revenue, err := requireAccount(ctx, tx, ev.TenantID, revenueCode)
		if err != nil {
			return err
		}

		txn := Transaction{
			TenantID:    ev.TenantID,
			PostedBy:    ev.PostedBy,
			Date:        ev.IssueDate,
			Reference:   ev.Number,
			Description: fmt.Sprintf("Invoice %s - %s", ev.Number, ev.Customer),
			SourceType:  SourceInvoice,
			SourceID:    ev.InvoiceID,
			Lines: []Line{
				{AccountID: ar.ID, Debit: ev.Total, Description: "Accounts Receivable"},
				{AccountID: revenue.ID, Credit: ev.Subtotal, Description: "Revenue"},
			},
		}
		if ev.Tax.IsPositive() {
			vat, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.VATPayable)
			if err != nil {
				return err
			}
			txn.Lines = append(txn.Lines, Line{AccountID: vat.ID, Credit: ev.Tax, Description: "VAT Payable"})
		}
		if posting, err = e.apply(ctx, tx, txn); err != nil {
			return err
		}

		inv = &Invoice{
			ID:         ev.InvoiceID,
			TenantID:   ev.TenantID,
			Number:     ev.Number,
			Customer:   ev.Customer,
			IssueDate:  Day(ev.IssueDate),
			DueDate:    Day(ev.DueDate),
			Subtotal:   ev.Subtotal,
			Tax:        ev.Tax,
			Total:      ev.Total,
			AmountPaid: decimal.Zero,
			BalanceDue: ev.Total,
			Status:     InvoiceSent,
		}
		if inv.DueDate.IsZero() {
			inv.DueDate = inv.IssueDate
		}
		if existing != nil {
			return tx.UpdateInvoice(ctx, inv)
		}
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("issue invoice %s: %w", ev.Number, err)
	}
	e.committed(ctx, posting)
	return inv, posting, nil
}

// RegisterDraftInvoice stores an invoice that has not been issued yet. It
// creates no ledger rows.
func (e *PostingEngine) RegisterDraftInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	if err := requireFields(map[string]string{"tenantId": inv.TenantID, "id": inv.ID, "number": inv.Number}); err != nil {
		return nil, err
	}
	inv.Status = InvoiceDraft
	inv.IssueDate = Day(inv.IssueDate)
	inv.DueDate = Day(inv.DueDate)
	inv.AmountPaid = decimal.Zero
	inv.BalanceDue = inv.Total
	err := e.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertInvoice(ctx, &inv)
	})
	if err != nil {
		return nil, fmt.Errorf("register invoice %s: %w", inv.Number, err)
	}
	return &inv, nil
}

// RecordInvoicePayment posts cash against AR and advances the invoice's
// payment state.
func (e *PostingEngine) RecordInvoicePayment(ctx context.Context, ev InvoicePaymentReceived) (*Invoice, *Posting, error) {
	if err := requireFields(map[string]string{"tenantId": ev.TenantID, "postedBy": ev.PostedBy, "invoiceId": ev.InvoiceID, "accountId": ev.AccountID}); err != nil {
		return nil, nil, err
	}
	if !ev.Amount.IsPositive() {
		return nil, nil, validationf("payment amount must be positive")
	}
	if ev.Date.IsZero() {
		ev.Date = e.opts.Now()
	}
	if ev.PaymentID == "" {
		ev.PaymentID = uuid.New().String()
	}

	var (
		inv     *Invoice
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		inv, err = tx.GetInvoice(ctx, ev.TenantID, ev.InvoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case InvoiceSent, InvoicePartiallyPaid:
		default:
			return fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, ErrInvalidDocumentState)
		}
		cash, err := requireAssetAccount(ctx, tx, ev.TenantID, ev.AccountID)
		if err != nil {
			return err
		}
		ar, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.AccountsReceivable)
		if err != nil {
			return err
		}
		reference := ev.Reference
		if reference == "" {
			reference = "PAY-" + inv.Number
		}
		posting, err = e.apply(ctx, tx, Transaction{
			TenantID:    ev.TenantID,
			PostedBy:    ev.PostedBy,
			Date:        ev.Date,
			Reference:   reference,
			Description: "Payment for Invoice " + inv.Number,
			SourceType:  SourceInvoicePayment,
			SourceID:    ev.PaymentID,
			Lines: []Line{
				{AccountID: cash.ID, Debit: ev.Amount, Description: "Payment received"},
				{AccountID: ar.ID, Credit: ev.Amount, Description: "Accounts Receivable"},
			},
		})
		if err != nil {
			return err
		}
		inv.ApplyPayment(ev.Amount)
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record payment for invoice %s: %w", ev.InvoiceID, err)
	}
	e.committed(ctx, posting)
	e.opts.Logger.Info("invoice_payment_applied",
		slog.String("tenant_id", ev.TenantID),
		slog.String("invoice_id", inv.ID),
		slog.String("status", string(inv.Status)),
		slog.String("balance_due", inv.BalanceDue.StringFixed(2)))
	return inv, posting, nil
}

// ApplyPayment adds amount to the paid total and derives balance due and
// status. Overpayment leaves the balance due at zero.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal) {
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.BalanceDue = inv.Total.Sub(inv.AmountPaid)
	if inv.BalanceDue.LessThanOrEqual(decimal.Zero) {
		inv.BalanceDue = decimal.Zero
		inv.Status = InvoicePaid
		return
	}
	inv.Status = InvoicePartiallyPaid
}

// CancelInvoice cancels an invoice with no payments. A SENT invoice has its
// postings reversed.
func (e *PostingEngine) CancelInvoice(ctx context.Context, tenantID, actor, invoiceID string, date time.Time) (*Invoice, *Posting, error) {
	if date.IsZero() {
		date = e.opts.Now()
	}
	var (
		inv     *Invoice
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		inv, err = tx.GetInvoice(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		switch {
		case inv.Status == InvoiceDraft:
		case inv.Status == InvoiceSent && inv.AmountPaid.IsZero():
			posting, err = e.reverse(ctx, tx, ReversalRequest{
				TenantID:   tenantID,
				PostedBy:   actor,
				SourceType: SourceInvoice,
				SourceID:   invoiceID,
				Date:       date,
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, ErrInvalidDocumentState)
		}
		inv.Status = InvoiceCancelled
		inv.BalanceDue = decimal.Zero
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cancel invoice %s: %w", invoiceID, err)
	}
	e.committed(ctx, posting)
	return inv, posting, nil
}

// RecordExpense posts the net amount to an expense account, the tax to VAT
// receivable and the gross amount to accounts payable.
func (e *PostingEngine) RecordExpense(ctx context.Context, ev ExpenseRecorded) (*ExpenseRecord, *Posting, error) {
	if err := requireFields(map[string]string{"tenantId": ev.TenantID, "postedBy": ev.PostedBy, "expenseId": ev.ExpenseID}); err != nil {
		return nil, nil, err
	}
	if !ev.Amount.IsPositive() {
		return nil, nil, validationf("expense amount must be positive")
	}
	if ev.Tax.IsNegative() || ev.Tax.GreaterThan(ev.Amount) {
		return nil, nil, validationf("expense tax must be between zero and the amount")
	}
	if ev.Date.IsZero() {
		return nil, nil, validationf("expense date is required")
	}
	reference := ev.Reference
	if reference == "" {
		reference = "EXP-" + shortID(ev.ExpenseID)
	}
	net := ev.Amount.Sub(ev.Tax)

	var (
		exp     *ExpenseRecord
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		var expenseAcct *Account
		var err error
		if ev.AccountID != "" {
			expenseAcct, err = tx.GetAccount(ctx, ev.TenantID, ev.AccountID)
		} else {
			expenseAcct, err = requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.OperatingExpenses)
		}
		if err != nil {
			return err
		}
		if expenseAcct.Type != Expense {
			return validationf("expense account %s must be an expense account", expenseAcct.Code)
		}
		ap, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.AccountsPayable)
		if err != nil {
			return err
		}

		txn := Transaction{
			TenantID:    ev.TenantID,
			PostedBy:    ev.PostedBy,
			Date:        ev.Date,
			Reference:   reference,
			Description: ev.Description,
			SourceType:  SourceExpense,
			SourceID:    ev.ExpenseID,
		}
		if net.IsPositive() {
			txn.Lines = append(txn.Lines, Line{AccountID: expenseAcct.ID, Debit: net, Description: ev.Description})
		}
		if ev.Tax.IsPositive() {
			vat, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.VATReceivable)
			if err != nil {
				return err
			}
			txn.Lines = append(txn.Lines, Line{AccountID: vat.ID, Debit: ev.Tax, Description: "VAT Receivable"})
		}
		txn.Lines = append(txn.Lines, Line{AccountID: ap.ID, Credit: ev.Amount, Description: "Accounts Payable"})

		if posting, err = e.apply(ctx, tx, txn); err != nil {
			return err
		}
		exp = &ExpenseRecord{
			ID:          ev.ExpenseID,
			TenantID:    ev.TenantID,
			Date:        Day(ev.Date),
			Description: ev.Description,
			Vendor:      ev.Vendor,
			Amount:      ev.Amount,
			Tax:         ev.Tax,
			Reference:   reference,
			AccountID:   expenseAcct.ID,
		}
		return tx.InsertExpense(ctx, exp)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record expense %s: %w", ev.ExpenseID, err)
	}
	e.committed(ctx, posting)
	return exp, posting, nil
}

// PostVendorBill credits accounts payable for the bill total and debits each
// item's account and VAT receivable.
func (e *PostingEngine) PostVendorBill(ctx context.Context, ev VendorBillPosted) (*VendorBill, *Posting, error) {
	if err := requireFields(map[string]string{"tenantId": ev.TenantID, "postedBy": ev.PostedBy, "billId": ev.BillID, "number": ev.Number}); err != nil {
		return nil, nil, err
	}
	if len(ev.Items) == 0 {
		return nil, nil, validationf("bill %s has no items", ev.Number)
	}
	if ev.IssueDate.IsZero() {
		return nil, nil, validationf("bill issue date is required")
	}
	tax := decimal.Zero
	computed := decimal.Zero
	for i, item := range ev.Items {
		if item.AccountID == "" {
			return nil, nil, validationf("bill item %d: account is required", i+1)
		}
		if item.Amount.IsNegative() || item.Tax.IsNegative() {
			return nil, nil, validationf("bill item %d: amounts must not be negative", i+1)
		}
		tax = tax.Add(item.Tax)
		computed = computed.Add(item.Amount).Add(item.Tax)
	}
	total := ev.Total
	if total.IsZero() {
		total = computed
	}

	var (
		bill    *VendorBill
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.GetBill(ctx, ev.TenantID, ev.BillID)
		if err != nil && !errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		if existing != nil && existing.Status != BillDraft {
			return fmt.Errorf("bill %s is %s: %w", ev.Number, existing.Status, ErrAlreadyPosted)
		}
		ap, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.AccountsPayable)
		if err != nil {
			return err
		}
		vat, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.VATReceivable)
		if err != nil {
			return err
		}

		txn := Transaction{
			TenantID:    ev.TenantID,
			PostedBy:    ev.PostedBy,
			Date:        ev.IssueDate,
			Reference:   ev.Number,
			Description: fmt.Sprintf("Bill %s - %s", ev.Number, ev.Vendor),
			SourceType:  SourceBill,
			SourceID:    ev.BillID,
			Lines:       []Line{{AccountID: ap.ID, Credit: total, Description: "Accounts Payable"}},
		}
		for _, item := range ev.Items {
			acct, err := tx.GetAccount(ctx, ev.TenantID, item.AccountID)
			if err != nil {
				return err
			}
			if acct.Type != Expense && acct.Type != Asset {
				return validationf("bill item account %s must be an expense or asset account", acct.Code)
			}
			if item.Amount.IsPositive() {
				txn.Lines = append(txn.Lines, Line{AccountID: acct.ID, Debit: item.Amount, Description: item.Description})
			}
			if item.Tax.IsPositive() {
				txn.Lines = append(txn.Lines, Line{AccountID: vat.ID, Debit: item.Tax, Description: "VAT on " + item.Description})
			}
		}
		if posting, err = e.apply(ctx, tx, txn); err != nil {
			return err
		}

		bill = &VendorBill{
			ID:        ev.BillID,
			TenantID:  ev.TenantID,
			Number:    ev.Number,
			Vendor:    ev.Vendor,
			IssueDate: Day(ev.IssueDate),
			Total:     total,
			Tax:       tax,
			Status:    BillOpen,
		}
		if existing != nil {
			return tx.UpdateBill(ctx, bill)
		}
		return tx.InsertBill(ctx, bill)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("post bill %s: %w", ev.Number, err)
	}
	e.committed(ctx, posting)
	return bill, posting, nil
}

// PayVendorBill settles an open bill from a cash or bank account.
func (e *PostingEngine) PayVendorBill(ctx context.Context, ev VendorBillPaid) (*VendorBill, *Posting, error) {
	if err := requireFields(map[string]string{"tenantId": ev.TenantID, "postedBy": ev.PostedBy, "billId": ev.BillID, "accountId": ev.AccountID}); err != nil {
		return nil, nil, err
	}
	if ev.Date.IsZero() {
		ev.Date = e.opts.Now()
	}
	var (
		bill    *VendorBill
		posting *Posting
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		bill, err = tx.GetBill(ctx, ev.TenantID, ev.BillID)
		if err != nil {
			return err
		}
		if bill.Status != BillOpen {
			return fmt.Errorf("bill %s is %s: %w", bill.Number, bill.Status, ErrInvalidDocumentState)
		}
		ap, err := requireAccount(ctx, tx, ev.TenantID, e.opts.Codes.AccountsPayable)
		if err != nil {
			return err
		}
		cash, err := requireAssetAccount(ctx, tx, ev.TenantID, ev.AccountID)
		if err != nil {
			return err
		}
		posting, err = e.apply(ctx, tx, Transaction{
			TenantID:    ev.TenantID,
			PostedBy:    ev.PostedBy,
			Date:        ev.Date,
			Reference:   "PAY-" + bill.Number,
			Description: "Payment for Bill " + bill.Number,
			SourceType:  SourceBillPayment,
			SourceID:    bill.ID,
			Lines: []Line{
				{AccountID: ap.ID, Debit: bill.Total, Description: "Accounts Payable"},
				{AccountID: cash.ID, Credit: bill.Total, Description: "Bill payment"},
			},
		})
		if err != nil {
			return err
		}
		bill.Status = BillPaid
		return tx.UpdateBill(ctx, bill)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pay bill %s: %w", ev.BillID, err)
	}
	e.committed(ctx, posting)
	return bill, posting, nil
}

// requireAccount resolves a system account by code. Its absence is a
// provisioning problem, not bad input.
func requireAccount(ctx context.Context, tx Tx, tenantID, code string) (*Account, error) {
	acct, err := tx.GetAccountByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("account code %s: %w", code, ErrMissingRequiredAccount)
		}
		return nil, err
	}
	return acct, nil
}

func requireAssetAccount(ctx context.Context, tx Tx, tenantID, id string) (*Account, error) {
	acct, err := tx.GetAccount(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if acct.Type != Asset {
		return nil, validationf("account %s must be a cash or bank account", acct.Code)
	}
	return acct, nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
