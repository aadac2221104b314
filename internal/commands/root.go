// Package commands implements the glctl command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/gl-core/internal/config"
	"github.com/example/gl-core/internal/ledger"
	"github.com/example/gl-core/internal/store"
)

// app carries the global flags and the resolved configuration.
type app struct {
	envFile  string
	driver   string
	database string
	debug    bool

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "glctl",
		Short: "Operate a multi-tenant general ledger",
		Long: `glctl manages the general ledger database directly.

Example:
  glctl migrate
  glctl seed --tenant acme --tenant globex
  glctl report trial-balance --tenant acme --as-of 2024-06-30
  glctl verify --tenant acme
  glctl audit verify --file /var/log/gl/audit.jsonl`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load (default is .env)")
	rootCmd.PersistentFlags().StringVar(&a.driver, "driver", "", "database driver, postgres or sqlite (default $DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&a.database, "database", "", "database URL or SQLite path (default $DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newSeedCommand(a))
	rootCmd.AddCommand(newAccountsCommand(a))
	rootCmd.AddCommand(newReportCommand(a))
	rootCmd.AddCommand(newVerifyCommand(a))
	rootCmd.AddCommand(newAuditCommand(a))

	return rootCmd
}

// loadEnv builds the logger and reads the env file.
func (a *app) loadEnv(cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if a.debug {
		logLevel = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	return config.LoadDotEnv(a.envFile)
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := a.loadEnv(cmd); err != nil {
		return err
	}
	cfg := config.FromEnv()
	if cfg.Environment == "" {
		cfg.Environment = "cli"
	}
	if a.driver != "" {
		cfg.DBDriver = a.driver
	}
	if a.database != "" {
		cfg.DatabaseURL = a.database
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// open connects to the configured database and applies the schema.
func (a *app) open(ctx context.Context) (*store.Store, *ledger.Service, error) {
	st, err := store.Open(ctx, a.cfg.Dialect(), a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}
	opts := a.cfg.LedgerOptions()
	opts.Logger = a.logger
	return st, ledger.NewService(st, opts), nil
}

// withService runs fn against a freshly opened service.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *ledger.Service) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, svc, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	out, err := fn(ctx, svc)
	if out != nil {
		if werr := writeJSON(cmd, out); werr != nil {
			return werr
		}
	}
	return err
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, _ *ledger.Service) (any, error) {
				return map[string]any{"migrated": true, "dialect": a.cfg.Dialect()}, nil
			})
		},
	}
}

func newVerifyCommand(a *app) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check double entry, cached balances and the trial balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *ledger.Service) (any, error) {
				results, err := svc.Validator.ValidateTenant(ctx, tenant)
				if err != nil {
					return nil, err
				}
				valid := ledger.Valid(results)
				out := map[string]any{"tenant": tenant, "valid": valid, "results": results}
				if !valid {
					return out, fmt.Errorf("ledger of tenant %s is inconsistent", tenant)
				}
				return out, nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
