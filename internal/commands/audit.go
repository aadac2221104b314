package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/gl-core/pkg/audit"
)

func newAuditCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit chain",
		// The audit sink is a file; no database configuration is needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadEnv(cmd)
		},
	}

	var file string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the hash chain of an audit sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("AUDIT_SINK")
			}
			if file == "" {
				return errors.New("--file or AUDIT_SINK is required")
			}
			report, err := audit.VerifyFile(file)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("%w at entry %d", audit.ErrBrokenChain, *report.BrokenAt)
			}
			return nil
		},
	}
	verify.Flags().StringVar(&file, "file", "", "audit sink to verify (default $AUDIT_SINK)")

	cmd.AddCommand(verify)
	return cmd
}
