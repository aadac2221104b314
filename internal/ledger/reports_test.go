package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gl-core/internal/ledger"
)

// bookHalfYear records a capital injection, a sale, a part payment, an
// expense and an equipment purchase in the first half of 2024.
func bookHalfYear(h *harness) {
	h.t.Helper()
	h.postJournal(ledger.Date(2024, time.January, 5), "1120", "3100", "50000")
	h.issueInvoice("inv-1", ledger.Date(2024, time.February, 1), "25000", "1250")
	h.pay("inv-1", "1120", "10000", ledger.Date(2024, time.March, 1))
	_, _, err := h.svc.Posting.RecordExpense(h.ctx, ledger.ExpenseRecorded{
		TenantID:    h.tenant,
		PostedBy:    "clerk",
		ExpenseID:   "exp-1",
		Date:        ledger.Date(2024, time.March, 10),
		Description: "Office supplies",
		Amount:      amt("1050"),
		Tax:         amt("50"),
	})
	require.NoError(h.t, err)
	h.postJournal(ledger.Date(2024, time.April, 1), "1510", "1120", "5000")
}

func statementAmounts(lines []ledger.StatementLine) map[string]string {
	out := make(map[string]string, len(lines))
	for _, l := range lines {
		out[l.Code] = l.Amount.StringFixed(2)
	}
	return out
}

func TestTrialBalance(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)

	tb, err := h.svc.Reports.TrialBalance(h.ctx, h.tenant, today)
	require.NoError(t, err)
	require.NoError(t, tb.Check())

	assert.True(t, tb.IsBalanced)
	assert.Equal(t, "77300.00", tb.TotalDebit.StringFixed(2))
	assert.Equal(t, "77300.00", tb.TotalCredit.StringFixed(2))

	codes := make([]string, 0, len(tb.Rows))
	for _, r := range tb.Rows {
		codes = append(codes, r.Code)
		assert.True(t, r.Debit.IsZero() || r.Credit.IsZero(), r.Code)
	}
	assert.Equal(t, []string{"1120", "1200", "1300", "1510", "2100", "2200", "3100", "4100", "5200"}, codes)

	t.Run("as of an earlier date", func(t *testing.T) {
		tb, err := h.svc.Reports.TrialBalance(h.ctx, h.tenant, ledger.Date(2024, time.January, 31))
		require.NoError(t, err)
		require.Len(t, tb.Rows, 2)
		assert.Equal(t, "50000.00", tb.TotalDebit.StringFixed(2))
	})

	t.Run("unbalanced trial balance fails its check", func(t *testing.T) {
		bad := &ledger.TrialBalance{TotalDebit: amt("10"), TotalCredit: amt("9")}
		err := bad.Check()
		var inv *ledger.InvariantError
		require.True(t, errors.As(err, &inv))
		assert.Equal(t, "1.00", inv.Difference.StringFixed(2))
		assert.ErrorIs(t, err, ledger.ErrInvariant)
	})
}

func TestProfitAndLoss(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)

	pl, err := h.svc.Reports.ProfitAndLoss(h.ctx, h.tenant, time.Time{}, today)
	require.NoError(t, err)
	assert.Equal(t, ledger.Date(2024, time.January, 1), pl.Start)
	assert.Equal(t, "25000.00", pl.TotalRevenue.StringFixed(2))
	assert.Equal(t, "1000.00", pl.TotalExpenses.StringFixed(2))
	assert.Equal(t, "24000.00", pl.NetProfit.StringFixed(2))
	assert.Equal(t, map[string]string{"4100": "25000.00"}, statementAmounts(pl.Revenue))
	assert.Equal(t, map[string]string{"5200": "1000.00"}, statementAmounts(pl.Expenses))

	march, err := h.svc.Reports.ProfitAndLoss(h.ctx, h.tenant, ledger.Date(2024, time.March, 1), ledger.Date(2024, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, march.Revenue)
	assert.Equal(t, "-1000.00", march.NetProfit.StringFixed(2))

	_, err = h.svc.Reports.ProfitAndLoss(h.ctx, h.tenant, ledger.Date(2024, time.April, 1), ledger.Date(2024, time.March, 1))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestBalanceSheet(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)

	bs, err := h.svc.Reports.BalanceSheet(h.ctx, h.tenant, today)
	require.NoError(t, err)
	require.NoError(t, bs.Check())

	assert.Equal(t, "76300.00", bs.TotalAssets.StringFixed(2))
	assert.Equal(t, "2300.00", bs.TotalLiabilities.StringFixed(2))
	assert.Equal(t, "74000.00", bs.TotalEquity.StringFixed(2))
	assert.Equal(t, "76300.00", bs.TotalLiabilitiesAndEquity.StringFixed(2))
	assert.Equal(t, "24000.00", bs.CurrentPeriodEarnings.StringFixed(2))
	assert.True(t, bs.Difference.IsZero())

	assert.Equal(t, map[string]string{
		"1120": "55000.00",
		"1200": "16250.00",
		"1300": "50.00",
		"1510": "5000.00",
	}, statementAmounts(bs.Assets))
	assert.Equal(t, map[string]string{
		"3100":                     "50000.00",
		ledger.CurrentEarningsCode: "24000.00",
	}, statementAmounts(bs.Equity))
}

func TestBalanceSheetCarriesUnclosedPriorEarnings(t *testing.T) {
	h := newHarness(t)
	h.issueInvoice("inv-2023", ledger.Date(2023, time.November, 1), "1000", "0")

	bs, err := h.svc.Reports.BalanceSheet(h.ctx, h.tenant, today)
	require.NoError(t, err)
	require.NoError(t, bs.Check())

	equity := statementAmounts(bs.Equity)
	assert.Equal(t, "1000.00", equity[ledger.PriorEarningsCode])
	assert.Equal(t, "0.00", equity[ledger.CurrentEarningsCode])
	assert.Equal(t, ledger.Date(2024, time.January, 1), bs.FiscalPeriodStart)
}

func TestCashFlowStatement(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)

	cf, err := h.svc.Reports.CashFlowStatement(h.ctx, h.tenant, time.Time{}, today)
	require.NoError(t, err)
	require.NoError(t, cf.Check())

	assert.Equal(t, "24000.00", cf.NetIncome.StringFixed(2))
	assert.Equal(t, "10000.00", cf.Operating.Total.StringFixed(2))
	assert.Equal(t, "-5000.00", cf.Investing.Total.StringFixed(2))
	assert.Equal(t, "50000.00", cf.Financing.Total.StringFixed(2))
	assert.Equal(t, "0.00", cf.CashAtBeginning.StringFixed(2))
	assert.Equal(t, "55000.00", cf.CashAtEnd.StringFixed(2))
	assert.Equal(t, "55000.00", cf.NetChangeFromActivities.StringFixed(2))
	assert.True(t, cf.Discrepancy.IsZero())
	assert.Empty(t, cf.Excluded.Items)

	operating := map[string]string{}
	for _, item := range cf.Operating.Items {
		operating[item.Code] = item.Amount.StringFixed(2)
	}
	assert.Equal(t, map[string]string{
		"1200": "-16250.00",
		"1300": "-50.00",
		"2100": "1050.00",
		"2200": "1250.00",
	}, operating)

	t.Run("second quarter starts from the opening cash", func(t *testing.T) {
		cf, err := h.svc.Reports.CashFlowStatement(h.ctx, h.tenant, ledger.Date(2024, time.April, 1), today)
		require.NoError(t, err)
		assert.Equal(t, "60000.00", cf.CashAtBeginning.StringFixed(2))
		assert.Equal(t, "55000.00", cf.CashAtEnd.StringFixed(2))
		assert.Equal(t, "-5000.00", cf.Investing.Total.StringFixed(2))
		assert.NoError(t, cf.Check())
	})
}

func TestCashFlowReportsExcludedMovements(t *testing.T) {
	h := newHarness(t)
	// Retained earnings movements belong to no activity.
	h.postJournal(ledger.Date(2024, time.February, 1), "1110", "3200", "300")

	cf, err := h.svc.Reports.CashFlowStatement(h.ctx, h.tenant, time.Time{}, today)
	require.NoError(t, err)
	require.Len(t, cf.Excluded.Items, 1)
	assert.Equal(t, "3200", cf.Excluded.Items[0].Code)
	assert.Equal(t, "300.00", cf.Discrepancy.StringFixed(2))
	assert.ErrorIs(t, cf.Check(), ledger.ErrInvariant)
}

func TestVATReturn(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)
	_, err := h.svc.Posting.RegisterDraftInvoice(h.ctx, ledger.Invoice{
		ID:        "inv-draft",
		TenantID:  h.tenant,
		Number:    "INV-D",
		IssueDate: ledger.Date(2024, time.May, 1),
		Subtotal:  amt("999"),
		Tax:       amt("49.95"),
		Total:     amt("1048.95"),
	})
	require.NoError(t, err)

	ret, err := h.svc.Reports.VATReturn(h.ctx, h.tenant, ledger.Date(2024, time.January, 1), today)
	require.NoError(t, err)

	assert.Equal(t, 1, ret.Sales.Count)
	assert.Equal(t, "25000.00", ret.Sales.Taxable.StringFixed(2))
	assert.Equal(t, "26250.00", ret.Sales.Gross.StringFixed(2))
	assert.Equal(t, 1, ret.Expenses.Count)
	assert.Equal(t, "1000.00", ret.Expenses.Taxable.StringFixed(2))
	assert.Equal(t, 0, ret.Bills.Count)
	assert.Equal(t, "1250.00", ret.OutputVAT.StringFixed(2))
	assert.Equal(t, "50.00", ret.InputVAT.StringFixed(2))
	assert.Equal(t, "1200.00", ret.NetVATPayable.StringFixed(2))

	_, err = h.svc.Reports.VATReturn(h.ctx, h.tenant, time.Time{}, today)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestValidatorOnConsistentLedger(t *testing.T) {
	h := newHarness(t)
	bookHalfYear(h)

	results, err := h.svc.Validator.ValidateTenant(h.ctx, h.tenant)
	require.NoError(t, err)
	assert.True(t, ledger.Valid(results))

	types := map[string]bool{}
	for _, r := range results {
		types[r.ValidationType] = true
	}
	assert.True(t, types["double_entry_constraint"])
	assert.True(t, types["balance_consistency"])
	assert.True(t, types["trial_balance"])
}

func TestTrialBalanceWithinOneCent(t *testing.T) {
	h := newHarness(t)
	je, err := h.svc.Journals.Create(h.ctx, ledger.NewJournalEntry{
		TenantID:    h.tenant,
		CreatedBy:   "accountant",
		Date:        today,
		Description: "rounding",
		Lines: []ledger.JournalLine{
			{AccountID: h.account("5210").ID, Side: ledger.SideDebit, Amount: amt("100.00")},
			{AccountID: h.account("1110").ID, Side: ledger.SideCredit, Amount: amt("99.99")},
		},
	})
	require.NoError(t, err)
	_, _, err = h.svc.Journals.Post(h.ctx, h.tenant, "accountant", je.ID)
	require.NoError(t, err)

	tb, err := h.svc.Reports.TrialBalance(h.ctx, h.tenant, today)
	require.NoError(t, err)
	assert.Equal(t, "100.00", tb.TotalDebit.StringFixed(2))
	assert.Equal(t, "99.99", tb.TotalCredit.StringFixed(2))
	assert.True(t, tb.IsBalanced)
}
