package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Reports derives financial statements from the ledger. Each report reads
// one consistent snapshot and never writes.
type Reports struct {
	store Store
	opts  Options
}

// NewReports creates a report engine backed by store.
func NewReports(store Store, opts Options) *Reports {
	return &Reports{store: store, opts: opts.withDefaults()}
}

// TrialBalanceRow is one account's net position.
type TrialBalanceRow struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	SubType   SubType         `json:"subType"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// Net returns Debit - Credit.
func (r TrialBalanceRow) Net() decimal.Decimal {
	return r.Debit.Sub(r.Credit)
}

// TrialBalance lists every account with activity up to AsOf.
type TrialBalance struct {
	TenantID    string            `json:"tenantId"`
	AsOf        time.Time         `json:"asOf"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	IsBalanced  bool              `json:"isBalanced"`
}

// TrialBalance returns the trial balance as of asOf, inclusive.
func (r *Reports) TrialBalance(ctx context.Context, tenantID string, asOf time.Time) (*TrialBalance, error) {
	var tb *TrialBalance
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		accounts, err := accountIndex(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		tb, err = trialBalance(ctx, tx, tenantID, asOf, accounts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("trial balance: %w", err)
	}
	if !tb.IsBalanced {
		r.opts.Logger.Error("trial_balance_unbalanced", slog.String("tenant_id", tenantID),
			slog.String("debit", tb.TotalDebit.StringFixed(2)), slog.String("credit", tb.TotalCredit.StringFixed(2)))
	}
	return tb, nil
}

// Check returns an InvariantError when debits and credits differ.
func (tb *TrialBalance) Check() error {
	if tb.IsBalanced {
		return nil
	}
	return &InvariantError{Report: "trial balance", Difference: tb.TotalDebit.Sub(tb.TotalCredit)}
}

func accountIndex(ctx context.Context, tx Tx, tenantID string) (map[string]*Account, error) {
	if tenantID == "" {
		return nil, validationf("tenant id is required")
	}
	accounts, err := tx.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		index[a.ID] = a
	}
	return index, nil
}

func trialBalance(ctx context.Context, tx Tx, tenantID string, asOf time.Time, accounts map[string]*Account) (*TrialBalance, error) {
	totals, err := tx.TotalsByAccount(ctx, tenantID, time.Time{}, Day(asOf))
	if err != nil {
		return nil, err
	}
	tb := &TrialBalance{
		TenantID:    tenantID,
		AsOf:        Day(asOf),
		Rows:        []TrialBalanceRow{},
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, t := range totals {
		if t.Debit.IsZero() && t.Credit.IsZero() {
			continue
		}
		acct, ok := accounts[t.AccountID]
		if !ok {
			continue
		}
		row := TrialBalanceRow{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Type:      acct.Type,
			SubType:   acct.SubType,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		if net := t.Net(); net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.IsBalanced = withinTolerance(tb.TotalDebit, tb.TotalCredit)
	return tb, nil
}

// StatementLine is one account's contribution to a statement section.
type StatementLine struct {
	AccountID string          `json:"accountId,omitempty"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	SubType   SubType         `json:"subType,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// ProfitAndLoss summarizes revenue and expenses over a period.
type ProfitAndLoss struct {
	TenantID      string          `json:"tenantId"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Revenue       []StatementLine `json:"revenue"`
	Expenses      []StatementLine `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetProfit     decimal.Decimal `json:"netProfit"`
}

// ProfitAndLoss returns revenue and expense activity dated in [start, end].
// A zero start means the beginning of the fiscal year containing end.
func (r *Reports) ProfitAndLoss(ctx context.Context, tenantID string, start, end time.Time) (*ProfitAndLoss, error) {
	if start.IsZero() {
		start = r.opts.FiscalYearStart.PeriodStart(end)
	}
	if Day(start).After(Day(end)) {
		return nil, validationf("start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	var pl *ProfitAndLoss
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		accounts, err := accountIndex(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		pl, err = profitAndLoss(ctx, tx, tenantID, start, end, accounts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("profit and loss: %w", err)
	}
	return pl, nil
}

func profitAndLoss(ctx context.Context, tx Tx, tenantID string, start, end time.Time, accounts map[string]*Account) (*ProfitAndLoss, error) {
	totals, err := tx.TotalsByAccount(ctx, tenantID, Day(start), Day(end))
	if err != nil {
		return nil, err
	}
	pl := &ProfitAndLoss{
		TenantID:      tenantID,
		Start:         Day(start),
		End:           Day(end),
		Revenue:       []StatementLine{},
		Expenses:      []StatementLine{},
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, t := range totals {
		acct, ok := accounts[t.AccountID]
		if !ok || (t.Debit.IsZero() && t.Credit.IsZero()) {
			continue
		}
		line := StatementLine{AccountID: acct.ID, Code: acct.Code, Name: acct.Name, SubType: acct.SubType}
		switch acct.Type {
		case Revenue:
			line.Amount = t.Credit.Sub(t.Debit)
			pl.Revenue = append(pl.Revenue, line)
			pl.TotalRevenue = pl.TotalRevenue.Add(line.Amount)
		case Expense:
			line.Amount = t.Debit.Sub(t.Credit)
			pl.Expenses = append(pl.Expenses, line)
			pl.TotalExpenses = pl.TotalExpenses.Add(line.Amount)
		}
	}
	sortLines(pl.Revenue)
	sortLines(pl.Expenses)
	pl.NetProfit = pl.TotalRevenue.Sub(pl.TotalExpenses)
	return pl, nil
}

func sortLines(lines []StatementLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
}

// Synthetic equity lines injected into the balance sheet.
const (
	CurrentEarningsCode = "RE-CURRENT"
	CurrentEarningsName = "Current Period Earnings"
	PriorEarningsCode   = "RE-PRIOR"
	PriorEarningsName   = "Unclosed Prior Period Earnings"
)

// BalanceSheet is the statement of financial position at AsOf.
type BalanceSheet struct {
	TenantID                  string          `json:"tenantId"`
	AsOf                      time.Time       `json:"asOf"`
	FiscalPeriodStart         time.Time       `json:"fiscalPeriodStart"`
	Assets                    []StatementLine `json:"assets"`
	Liabilities               []StatementLine `json:"liabilities"`
	Equity                    []StatementLine `json:"equity"`
	TotalAssets               decimal.Decimal `json:"totalAssets"`
	TotalLiabilities          decimal.Decimal `json:"totalLiabilities"`
	TotalEquity               decimal.Decimal `json:"totalEquity"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"totalLiabilitiesAndEquity"`
	CurrentPeriodEarnings     decimal.Decimal `json:"currentPeriodEarnings"`
	Difference                decimal.Decimal `json:"difference"`
	IsBalanced                bool            `json:"isBalanced"`
}

// Check returns an InvariantError when assets differ from liabilities plus
// equity.
func (bs *BalanceSheet) Check() error {
	if bs.IsBalanced {
		return nil
	}
	return &InvariantError{Report: "balance sheet", Difference: bs.Difference}
}

// BalanceSheet returns the balance sheet as of asOf. Earnings of the current
// fiscal period are shown as a synthetic equity line; earlier earnings not
// yet closed to retained earnings get a second synthetic line.
func (r *Reports) BalanceSheet(ctx context.Context, tenantID string, asOf time.Time) (*BalanceSheet, error) {
	var bs *BalanceSheet
	err := r.store.ReadTx(ctx, func(tx Tx) error {
		accounts, err := accountIndex(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		tb, err := trialBalance(ctx, tx, tenantID, asOf, accounts)
		if err != nil {
			return err
		}
		periodStart := r.opts.FiscalYearStart.PeriodStart(asOf)
		pl, err := profitAndLoss(ctx, tx, tenantID, periodStart, asOf, accounts)
		if err != nil {
			return err
		}
		bs = balanceSheet(tb, pl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balance sheet: %w", err)
	}
	if !bs.IsBalanced {
		r.opts.Logger.Error("balance_sheet_unbalanced", slog.String("tenant_id", tenantID),
			slog.String("as_of", bs.AsOf.Format(time.DateOnly)), slog.String("difference", bs.Difference.StringFixed(2)))
	}
	return bs, nil
}

func balanceSheet(tb *TrialBalance, pl *ProfitAndLoss) *BalanceSheet {
	bs := &BalanceSheet{
		TenantID:          tb.TenantID,
		AsOf:              tb.AsOf,
		FiscalPeriodStart: pl.Start,
		Assets:            []StatementLine{},
		Liabilities:       []StatementLine{},
		Equity:            []StatementLine{},
		TotalAssets:       decimal.Zero,
		TotalLiabilities:  decimal.Zero,
		TotalEquity:       decimal.Zero,
	}
	lifetimeEarnings := decimal.Zero
	for _, row := range tb.Rows {
		line := StatementLine{AccountID: row.AccountID, Code: row.Code, Name: row.Name, SubType: row.SubType}
		switch row.Type {
		case Asset:
			line.Amount = row.Net()
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(line.Amount)
		case Liability:
			line.Amount = row.Net().Neg()
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(line.Amount)
		case Equity:
			line.Amount = row.Net().Neg()
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(line.Amount)
		case Revenue, Expense:
			lifetimeEarnings = lifetimeEarnings.Sub(row.Net())
		}
	}

	bs.CurrentPeriodEarnings = pl.NetProfit
	bs.Equity = append(bs.Equity, StatementLine{Code: CurrentEarningsCode, Name: CurrentEarningsName, Amount: pl.NetProfit})
	bs.TotalEquity = bs.TotalEquity.Add(pl.NetProfit)
	if prior := lifetimeEarnings.Sub(pl.NetProfit); !prior.IsZero() {
		bs.Equity = append(bs.Equity, StatementLine{Code: PriorEarningsCode, Name: PriorEarningsName, Amount: prior})
		bs.TotalEquity = bs.TotalEquity.Add(prior)
	}

	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities.Add(bs.TotalEquity)
	bs.Difference = bs.TotalAssets.Sub(bs.TotalLiabilitiesAndEquity)
	bs.IsBalanced = bs.Difference.Abs().LessThanOrEqual(Tolerance)
	return bs
}
