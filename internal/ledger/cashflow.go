package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CashFlowItem is one account's balance movement in a cash flow section.
type CashFlowItem struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// CashFlowSection groups the items of one activity.
type CashFlowSection struct {
	Items []CashFlowItem  `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func newSection() CashFlowSection {
	return CashFlowSection{Items: []CashFlowItem{}, Total: decimal.Zero}
}

func (s *CashFlowSection) add(item CashFlowItem) {
	s.Items = append(s.Items, item)
	s.Total = s.Total.Add(item.Amount)
}

// CashFlowStatement is an indirect-method cash flow statement.
type CashFlowStatement struct {
	TenantID  string          `json:"tenantId"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	NetIncome decimal.Decimal `json:"netIncome"`
	// Operating.Total includes NetIncome.
	Operating CashFlowSection `json:"operating"`
	Investing CashFlowSection `json:"investing"`
	Financing CashFlowSection `json:"financing"`
	// Excluded lists movements left out of every activity, such as
	// retained earnings. A non-empty Excluded section explains a
	// non-zero Discrepancy.
	Excluded                CashFlowSection `json:"excluded"`
	NetChangeFromActivities decimal.Decimal `json:"netChangeFromActivities"`
	CashAtBeginning         decimal.Decimal `json:"cashAtBeginning"`
	CashAtEnd               decimal.Decimal `json:"cashAtEnd"`
	NetCashChange           decimal.Decimal `json:"netCashChange"`
	Discrepancy             decimal.Decimal `json:"discrepancy"`
}

// Check returns an InvariantError when the activities do not explain the
// change in cash.
func (cf *CashFlowStatement) Check() error {
	if cf.Discrepancy.Abs().LessThanOrEqual(Tolerance) {
		return nil
	}
	return &InvariantError{Report: "cash flow statement", Difference: cf.Discrepancy}
}

// CashFlowStatement returns the cash flow for [start, end].
func (r *Reports) CashFlowStatement(ctx context.Context, tenantID string, start, end time.Time) (*CashFlowStatement, error) {
	if start.IsZero() {
		start = r.opts.FiscalYearStart.PeriodStart(end)
	}
	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, validationf("start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	var cf *CashFlowStatement
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		accounts, err := accountIndex(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		pl, err := profitAndLoss(ctx, tx, tenantID, start, end, accounts)
		if err != nil {
			return err
		}
		opening, err := netByAccount(ctx, tx, tenantID, start.AddDate(0, 0, -1))
		if err != nil {
			return err
		}
		closing, err := netByAccount(ctx, tx, tenantID, end)
		if err != nil {
			return err
		}
		cf = r.cashFlow(tenantID, start, end, pl.NetProfit, accounts, opening, closing)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cash flow statement: %w", err)
	}
	if err := cf.Check(); err != nil {
		r.opts.Logger.Warn("cash_flow_discrepancy", slog.String("tenant_id", tenantID),
			slog.String("discrepancy", cf.Discrepancy.StringFixed(2)), slog.Int("excluded", len(cf.Excluded.Items)))
	}
	return cf, nil
}

func netByAccount(ctx context.Context, tx Tx, tenantID string, asOf time.Time) (map[string]decimal.Decimal, error) {
	totals, err := tx.TotalsByAccount(ctx, tenantID, time.Time{}, asOf)
	if err != nil {
		return nil, err
	}
	net := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		net[t.AccountID] = t.Net()
	}
	return net, nil
}

func (r *Reports) cashFlow(tenantID string, start, end time.Time, netIncome decimal.Decimal, accounts map[string]*Account, opening, closing map[string]decimal.Decimal) *CashFlowStatement {
	cf := &CashFlowStatement{
		TenantID:        tenantID,
		Start:           start,
		End:             end,
		NetIncome:       netIncome,
		Operating:       newSection(),
		Investing:       newSection(),
		Financing:       newSection(),
		Excluded:        newSection(),
		CashAtBeginning: decimal.Zero,
		CashAtEnd:       decimal.Zero,
	}
	cf.Operating.Total = netIncome

	ordered := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Code < ordered[j].Code })

	for _, acct := range ordered {
		if acct.Type == Revenue || acct.Type == Expense {
			continue
		}
		before, after := opening[acct.ID], closing[acct.ID]
		category := r.classify(acct)
		if category == CashFlowCash {
			cf.CashAtBeginning = cf.CashAtBeginning.Add(before)
			cf.CashAtEnd = cf.CashAtEnd.Add(after)
			continue
		}
		// Balances are debit-positive, so an asset increase and a
		// liability or equity decrease both yield a negative amount.
		change := before.Sub(after)
		if change.IsZero() {
			continue
		}
		item := CashFlowItem{AccountID: acct.ID, Code: acct.Code, Name: acct.Name, Amount: change}
		switch category {
		case CashFlowOperating:
			cf.Operating.add(item)
		case CashFlowInvesting:
			cf.Investing.add(item)
		case CashFlowFinancing:
			cf.Financing.add(item)
		default:
			cf.Excluded.add(item)
		}
	}

	cf.NetChangeFromActivities = cf.Operating.Total.Add(cf.Investing.Total).Add(cf.Financing.Total)
	cf.NetCashChange = cf.CashAtEnd.Sub(cf.CashAtBeginning)
	cf.Discrepancy = cf.NetCashChange.Sub(cf.NetChangeFromActivities)
	return cf
}

// classify returns the cash flow category of a balance sheet account. A
// stored category wins; otherwise cash accounts are recognised by code
// prefix and the rest by subtype.
func (r *Reports) classify(acct *Account) CashFlowCategory {
	if acct.CashFlowCategory != CashFlowInferred {
		return acct.CashFlowCategory
	}
	if acct.Type == Asset && r.opts.isCashCode(acct.Code) {
		return CashFlowCash
	}
	switch acct.SubType {
	case CurrentAsset, CurrentLiability:
		return CashFlowOperating
	case FixedAsset, OtherAsset:
		return CashFlowInvesting
	case LongTermLiability, EquitySub:
		return CashFlowFinancing
	}
	return CashFlowExcluded
}
