package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/gl-core/internal/ledger"
)

const invoiceColumns = `id, tenant_id, number, customer, issue_date, due_date, subtotal_cents, tax_cents,
	total_cents, amount_paid_cents, balance_due_cents, status`

func (t *tx) GetInvoice(ctx context.Context, tenantID, id string) (*ledger.Invoice, error) {
	var (
		inv                                    ledger.Invoice
		issue, due                             dbTime
		subtotal, tax, total, paid, balanceDue int64
	)
	err := t.queryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = ? AND id = ?`, tenantID, id).
		Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.Customer, &issue, &due, &subtotal, &tax,
			&total, &paid, &balanceDue, &inv.Status)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("invoice %s: %w", id, ledger.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	inv.IssueDate, inv.DueDate = issue.Time, due.Time
	inv.Subtotal, inv.Tax, inv.Total = fromCents(subtotal), fromCents(tax), fromCents(total)
	inv.AmountPaid, inv.BalanceDue = fromCents(paid), fromCents(balanceDue)
	return &inv, nil
}

func (t *tx) InsertInvoice(ctx context.Context, inv *ledger.Invoice) error {
	_, err := t.exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TenantID, inv.Number, inv.Customer, t.dialect.date(inv.IssueDate), t.dialect.date(inv.DueDate),
		toCents(inv.Subtotal), toCents(inv.Tax), toCents(inv.Total), toCents(inv.AmountPaid), toCents(inv.BalanceDue),
		string(inv.Status))
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("invoice %s already exists: %w", inv.ID, ledger.ErrAlreadyPosted)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (t *tx) UpdateInvoice(ctx context.Context, inv *ledger.Invoice) error {
	n, err := t.exec(ctx, `UPDATE invoices SET number = ?, customer = ?, issue_date = ?, due_date = ?,
		subtotal_cents = ?, tax_cents = ?, total_cents = ?, amount_paid_cents = ?, balance_due_cents = ?, status = ?
		WHERE tenant_id = ? AND id = ?`,
		inv.Number, inv.Customer, t.dialect.date(inv.IssueDate), t.dialect.date(inv.DueDate),
		toCents(inv.Subtotal), toCents(inv.Tax), toCents(inv.Total), toCents(inv.AmountPaid), toCents(inv.BalanceDue),
		string(inv.Status), inv.TenantID, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invoice %s: %w", inv.ID, ledger.ErrDocumentNotFound)
	}
	return nil
}

func (t *tx) InsertExpense(ctx context.Context, e *ledger.ExpenseRecord) error {
	_, err := t.exec(ctx, `INSERT INTO expenses (id, tenant_id, expense_date, description, vendor, amount_cents,
		tax_cents, reference, account_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, t.dialect.date(e.Date), e.Description, e.Vendor, toCents(e.Amount),
		toCents(e.Tax), e.Reference, e.AccountID)
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("expense %s already recorded: %w", e.ID, ledger.ErrAlreadyPosted)
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

const billColumns = `id, tenant_id, number, vendor, issue_date, total_cents, tax_cents, status`

func (t *tx) GetBill(ctx context.Context, tenantID, id string) (*ledger.VendorBill, error) {
	var (
		b          ledger.VendorBill
		issue      dbTime
		total, tax int64
	)
	err := t.queryRow(ctx, `SELECT `+billColumns+` FROM vendor_bills WHERE tenant_id = ? AND id = ?`, tenantID, id).
		Scan(&b.ID, &b.TenantID, &b.Number, &b.Vendor, &issue, &total, &tax, &b.Status)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("bill %s: %w", id, ledger.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	b.IssueDate = issue.Time
	b.Total, b.Tax = fromCents(total), fromCents(tax)
	return &b, nil
}

func (t *tx) InsertBill(ctx context.Context, b *ledger.VendorBill) error {
	_, err := t.exec(ctx, `INSERT INTO vendor_bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.Number, b.Vendor, t.dialect.date(b.IssueDate), toCents(b.Total), toCents(b.Tax), string(b.Status))
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("bill %s already exists: %w", b.ID, ledger.ErrAlreadyPosted)
		}
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (t *tx) UpdateBill(ctx context.Context, b *ledger.VendorBill) error {
	n, err := t.exec(ctx, `UPDATE vendor_bills SET number = ?, vendor = ?, issue_date = ?, total_cents = ?, tax_cents = ?,
		status = ? WHERE tenant_id = ? AND id = ?`,
		b.Number, b.Vendor, t.dialect.date(b.IssueDate), toCents(b.Total), toCents(b.Tax), string(b.Status), b.TenantID, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bill %s: %w", b.ID, ledger.ErrDocumentNotFound)
	}
	return nil
}

// vat runs a (count, taxable, tax, gross) aggregate.
func (t *tx) vat(ctx context.Context, query string, args ...any) (ledger.VATTotals, error) {
	var (
		count               int
		taxable, tax, gross int64
	)
	if err := t.queryRow(ctx, query, args...).Scan(&count, &taxable, &tax, &gross); err != nil {
		return ledger.VATTotals{}, fmt.Errorf("failed to sum VAT: %w", err)
	}
	return ledger.VATTotals{Count: count, Taxable: fromCents(taxable), Tax: fromCents(tax), Gross: fromCents(gross)}, nil
}

func (t *tx) InvoiceVAT(ctx context.Context, tenantID string, from, to time.Time) (ledger.VATTotals, error) {
	return t.vat(ctx, `SELECT COUNT(*),
			CAST(COALESCE(SUM(subtotal_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(tax_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(total_cents), 0) AS BIGINT)
		FROM invoices
		WHERE tenant_id = ? AND issue_date >= ? AND issue_date <= ? AND status NOT IN (?, ?)`,
		tenantID, t.dialect.date(from), t.dialect.date(to), string(ledger.InvoiceDraft), string(ledger.InvoiceCancelled))
}

func (t *tx) ExpenseVAT(ctx context.Context, tenantID string, from, to time.Time) (ledger.VATTotals, error) {
	return t.vat(ctx, `SELECT COUNT(*),
			CAST(COALESCE(SUM(amount_cents - tax_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(tax_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		FROM expenses
		WHERE tenant_id = ? AND expense_date >= ? AND expense_date <= ?`,
		tenantID, t.dialect.date(from), t.dialect.date(to))
}

func (t *tx) BillVAT(ctx context.Context, tenantID string, from, to time.Time) (ledger.VATTotals, error) {
	return t.vat(ctx, `SELECT COUNT(*),
			CAST(COALESCE(SUM(total_cents - tax_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(tax_cents), 0) AS BIGINT),
			CAST(COALESCE(SUM(total_cents), 0) AS BIGINT)
		FROM vendor_bills
		WHERE tenant_id = ? AND issue_date >= ? AND issue_date <= ? AND status <> ?`,
		tenantID, t.dialect.date(from), t.dialect.date(to), string(ledger.BillDraft))
}
