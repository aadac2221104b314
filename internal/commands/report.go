package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/gl-core/internal/ledger"
)

func newAccountsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect the chart of accounts",
	}

	var tenant string
	tree := &cobra.Command{
		Use:   "tree",
		Short: "Print the account hierarchy with balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *ledger.Service) (any, error) {
				return svc.Accounts.Hierarchy(ctx, tenant)
			})
		},
	}
	tree.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	_ = tree.MarkFlagRequired("tenant")

	cmd.AddCommand(tree)
	return cmd
}

// reportFlags are shared by every report subcommand. Which dates a report
// reads depends on the report.
type reportFlags struct {
	tenant string
	asOf   string
	from   string
	to     string
}

func (f *reportFlags) date(s string) (time.Time, error) {
	if s == "" {
		return ledger.Day(time.Now()), nil
	}
	return ledger.ParseDate(s)
}

func (f *reportFlags) period() (start, end time.Time, err error) {
	if end, err = f.date(f.to); err != nil {
		return
	}
	if f.from == "" {
		// Reports treat a zero start as the beginning of the fiscal year.
		return time.Time{}, end, nil
	}
	start, err = ledger.ParseDate(f.from)
	return
}

func newReportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Produce financial statements",
	}

	cmd.AddCommand(
		reportCommand(a, "trial-balance", "Trial balance as of a date", func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error) {
			asOf, err := f.date(f.asOf)
			if err != nil {
				return nil, err
			}
			return svc.Reports.TrialBalance(ctx, f.tenant, asOf)
		}),
		reportCommand(a, "pnl", "Profit and loss for a period", func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error) {
			start, end, err := f.period()
			if err != nil {
				return nil, err
			}
			return svc.Reports.ProfitAndLoss(ctx, f.tenant, start, end)
		}),
		reportCommand(a, "balance-sheet", "Balance sheet as of a date", func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error) {
			asOf, err := f.date(f.asOf)
			if err != nil {
				return nil, err
			}
			return svc.Reports.BalanceSheet(ctx, f.tenant, asOf)
		}),
		reportCommand(a, "cash-flow", "Indirect cash flow statement for a period", func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error) {
			start, end, err := f.period()
			if err != nil {
				return nil, err
			}
			return svc.Reports.CashFlowStatement(ctx, f.tenant, start, end)
		}),
		reportCommand(a, "vat", "VAT return for a period", func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error) {
			start, end, err := f.period()
			if err != nil {
				return nil, err
			}
			return svc.Reports.VATReturn(ctx, f.tenant, start, end)
		}),
	)
	return cmd
}

func reportCommand(a *app, use, short string, run func(ctx context.Context, svc *ledger.Service, f *reportFlags) (any, error)) *cobra.Command {
	f := &reportFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *ledger.Service) (any, error) {
				return run(ctx, svc, f)
			})
		},
	}
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "report date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.from, "from", "", "period start, YYYY-MM-DD (default fiscal year start)")
	cmd.Flags().StringVar(&f.to, "to", "", "period end, YYYY-MM-DD (default today)")
	return cmd
}
