package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/example/gl-core/pkg/audit"
)

// Auditor receives one record per committed ledger mutation.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) (*audit.LogEntry, error)
}

// ChartCodes names the account codes the posting recipes depend on.
type ChartCodes struct {
	AccountsReceivable string
	AccountsPayable    string
	VATPayable         string
	VATReceivable      string
	SalesRevenue       string
	OperatingExpenses  string
	RetainedEarnings   string
}

// DefaultChartCodes matches the default chart template.
func DefaultChartCodes() ChartCodes {
	return ChartCodes{
		AccountsReceivable: "1200",
		AccountsPayable:    "2100",
		VATPayable:         "2200",
		VATReceivable:      "1300",
		SalesRevenue:       "4100",
		OperatingExpenses:  "5200",
		RetainedEarnings:   "3200",
	}
}

// MonthDay is a day of the year such as a fiscal year start.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses an "MM-DD" string.
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid month-day %q: expected MM-DD", s)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// PeriodStart returns the most recent occurrence of md on or before asOf.
func (md MonthDay) PeriodStart(asOf time.Time) time.Time {
	start := Date(asOf.Year(), md.Month, md.Day)
	if start.After(Day(asOf)) {
		start = Date(asOf.Year()-1, md.Month, md.Day)
	}
	return start
}

// Options configures the ledger services. The zero value is usable.
type Options struct {
	Logger          *slog.Logger
	Auditor         Auditor
	Codes           ChartCodes
	Chart           *ChartTemplate
	FiscalYearStart MonthDay
	// CashPrefixes identifies cash and bank accounts by code prefix when
	// their cash flow category is not set.
	CashPrefixes    []string
	DefaultCurrency string
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Auditor == nil {
		o.Auditor = audit.NewChainLogger(io.Discard)
	}
	if o.Codes == (ChartCodes{}) {
		o.Codes = DefaultChartCodes()
	}
	if o.Chart == nil {
		o.Chart = DefaultChart()
	}
	if o.FiscalYearStart.Month == 0 {
		o.FiscalYearStart = MonthDay{Month: time.January, Day: 1}
	}
	if len(o.CashPrefixes) == 0 {
		o.CashPrefixes = []string{"10", "11"}
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = DefaultCurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) isCashCode(code string) bool {
	for _, p := range o.CashPrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}
