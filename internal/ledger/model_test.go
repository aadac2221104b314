package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWithinTolerance(t *testing.T) {
	assert.True(t, withinTolerance(d("100.00"), d("100.00")))
	assert.True(t, withinTolerance(d("100.000"), d("99.995")))
	assert.True(t, withinTolerance(d("100.00"), d("99.99")))
	assert.True(t, withinTolerance(d("99.99"), d("100.00")))
	assert.False(t, withinTolerance(d("100.00"), d("99.98")))
	assert.False(t, withinTolerance(d("100.000"), d("99.989")))
}

func TestHasAtMostTwoDecimals(t *testing.T) {
	assert.True(t, hasAtMostTwoDecimals(d("12")))
	assert.True(t, hasAtMostTwoDecimals(d("12.3")))
	assert.True(t, hasAtMostTwoDecimals(d("12.30")))
	assert.True(t, hasAtMostTwoDecimals(d("12.300")))
	assert.False(t, hasAtMostTwoDecimals(d("12.301")))
}

func TestTransactionValidate(t *testing.T) {
	valid := func() Transaction {
		return Transaction{
			TenantID:   "t1",
			PostedBy:   "u1",
			Date:       Date(2024, time.May, 1),
			SourceType: SourceManual,
			SourceID:   "s1",
			Lines: []Line{
				{AccountID: "a", Debit: d("10")},
				{AccountID: "b", Credit: d("10")},
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"missing tenant", func(tx *Transaction) { tx.TenantID = "" }, ErrValidation},
		{"missing date", func(tx *Transaction) { tx.Date = time.Time{} }, ErrValidation},
		{"bad source type", func(tx *Transaction) { tx.SourceType = "PAYROLL" }, ErrValidation},
		{"one line", func(tx *Transaction) { tx.Lines = tx.Lines[:1] }, ErrValidation},
		{"both sides", func(tx *Transaction) { tx.Lines[0].Credit = d("1") }, ErrValidation},
		{"neither side", func(tx *Transaction) { tx.Lines[0].Debit = decimal.Zero }, ErrValidation},
		{"negative", func(tx *Transaction) { tx.Lines[1].Credit = d("-10") }, ErrValidation},
		{"sub-cent", func(tx *Transaction) { tx.Lines[0].Debit = d("10.001") }, ErrValidation},
		{"unbalanced", func(tx *Transaction) { tx.Lines[1].Credit = d("9") }, ErrUnbalancedTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid()
			tt.mutate(&tx)
			assert.ErrorIs(t, tx.Validate(), tt.want)
		})
	}
}

func TestMonthDay(t *testing.T) {
	md, err := ParseMonthDay("07-01")
	require.NoError(t, err)
	assert.Equal(t, "07-01", md.String())

	assert.Equal(t, Date(2024, time.July, 1), md.PeriodStart(Date(2024, time.July, 1)))
	assert.Equal(t, Date(2023, time.July, 1), md.PeriodStart(Date(2024, time.June, 30)))
	assert.Equal(t, Date(2024, time.July, 1), md.PeriodStart(Date(2024, time.December, 31)))

	_, err = ParseMonthDay("13-01")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, time.February, 29), got)

	_, err = ParseDate("29/02/2024")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClassify(t *testing.T) {
	r := NewReports(nil, Options{})
	tests := []struct {
		acct Account
		want CashFlowCategory
	}{
		{Account{Code: "1050", Type: Asset, SubType: CurrentAsset}, CashFlowCash},
		{Account{Code: "1200", Type: Asset, SubType: CurrentAsset}, CashFlowOperating},
		{Account{Code: "1510", Type: Asset, SubType: FixedAsset}, CashFlowInvesting},
		{Account{Code: "2100", Type: Liability, SubType: CurrentLiability}, CashFlowOperating},
		{Account{Code: "2500", Type: Liability, SubType: LongTermLiability}, CashFlowFinancing},
		{Account{Code: "3100", Type: Equity, SubType: EquitySub}, CashFlowFinancing},
		{Account{Code: "3200", Type: Equity, SubType: RetainedEarnings}, CashFlowExcluded},
		{Account{Code: "1110", Type: Asset, SubType: CurrentAsset, CashFlowCategory: CashFlowFinancing}, CashFlowFinancing},
		// Liabilities never count as cash even under a cash prefix.
		{Account{Code: "1199", Type: Liability, SubType: CurrentLiability}, CashFlowOperating},
	}
	for _, tt := range tests {
		t.Run(tt.acct.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, r.classify(&tt.acct))
		})
	}
}

func TestBuildHierarchy(t *testing.T) {
	accounts := []*Account{
		{ID: "c", Code: "1110", ParentID: "b"},
		{ID: "a", Code: "2000"},
		{ID: "b", Code: "1000"},
		{ID: "d", Code: "1105", ParentID: "b"},
		{ID: "e", Code: "9000", ParentID: "gone"},
	}
	roots := BuildHierarchy(accounts)
	require.Len(t, roots, 3)
	assert.Equal(t, "1000", roots[0].Code)
	assert.Equal(t, "2000", roots[1].Code)
	assert.Equal(t, "9000", roots[2].Code)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "1105", roots[0].Children[0].Code)
	assert.Equal(t, "1110", roots[0].Children[1].Code)
	assert.Empty(t, roots[1].Children)
}

func TestIsCashCode(t *testing.T) {
	opts := Options{CashPrefixes: []string{"10", "11"}}
	assert.True(t, opts.isCashCode("1010"))
	assert.True(t, opts.isCashCode("1120"))
	assert.False(t, opts.isCashCode("1200"))
}
