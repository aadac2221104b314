package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/gl-core/internal/ledger"
)

type seedResult struct {
	Tenant  string `json:"tenant"`
	Created int    `json:"created"`
}

func newSeedCommand(a *app) *cobra.Command {
	var (
		tenants     []string
		chartFile   string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision the chart of accounts for one or more tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chart := ledger.DefaultChart()
			if chartFile != "" {
				f, err := os.Open(chartFile)
				if err != nil {
					return fmt.Errorf("opening chart: %w", err)
				}
				defer f.Close()
				if chart, err = ledger.LoadChart(f); err != nil {
					return err
				}
			}

			return a.withService(cmd, func(ctx context.Context, svc *ledger.Service) (any, error) {
				results, err := seedTenants(ctx, svc, chart, tenants, concurrency)
				if err != nil {
					return nil, err
				}
				return map[string]any{"tenants": results}, nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&tenants, "tenant", nil, "tenant id, may be repeated (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&chartFile, "chart", "", "YAML chart of accounts (default is the built-in chart)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "tenants seeded in parallel")

	return cmd
}

// seedTenants seeds every tenant, at most limit at a time. Results keep the
// order of tenants.
func seedTenants(ctx context.Context, svc *ledger.Service, chart *ledger.ChartTemplate, tenants []string, limit int) ([]seedResult, error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]seedResult, len(tenants))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, tenant := range tenants {
		i, tenant := i, tenant
		g.Go(func() error {
			created, err := svc.Accounts.Seed(ctx, tenant, chart)
			if err != nil {
				return fmt.Errorf("seeding tenant %s: %w", tenant, err)
			}
			results[i] = seedResult{Tenant: tenant, Created: created}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
