package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VATReturn summarizes output and input VAT for a period under a flat rate
// model.
type VATReturn struct {
	TenantID      string          `json:"tenantId"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Sales         VATTotals       `json:"sales"`
	Expenses      VATTotals       `json:"expenses"`
	Bills         VATTotals       `json:"bills"`
	OutputVAT     decimal.Decimal `json:"outputVat"`
	InputVAT      decimal.Decimal `json:"inputVat"`
	NetVATPayable decimal.Decimal `json:"netVatPayable"`
}

// VATReturn computes the VAT position for [start, end]. Draft and cancelled
// invoices are ignored.
func (r *Reports) VATReturn(ctx context.Context, tenantID string, start, end time.Time) (*VATReturn, error) {
	if tenantID == "" {
		return nil, validationf("tenant id is required")
	}
	start, end = Day(start), Day(end)
	if start.IsZero() || start.After(end) {
		return nil, validationf("invalid VAT period %s to %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	ret := &VATReturn{TenantID: tenantID, Start: start, End: end}
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		if ret.Sales, err = tx.InvoiceVAT(ctx, tenantID, start, end); err != nil {
			return err
		}
		if ret.Expenses, err = tx.ExpenseVAT(ctx, tenantID, start, end); err != nil {
			return err
		}
		ret.Bills, err = tx.BillVAT(ctx, tenantID, start, end)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vat return: %w", err)
	}
	ret.OutputVAT = ret.Sales.Tax
	ret.InputVAT = ret.Expenses.Tax.Add(ret.Bills.Tax)
	ret.NetVATPayable = ret.OutputVAT.Sub(ret.InputVAT)
	return ret, nil
}
