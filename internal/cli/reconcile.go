package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
	"github.com/mrlokans/librarian/internal/library"
)

type ReconcileCommand struct {
	Repair    bool
	ReportDir string
}

func NewReconcileCommand() *cobra.Command {
	c := &ReconcileCommand{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare availability flags with open loans",
		Long: `Lists every book whose availability flag disagrees with the loan ledger.
With --repair the flags are rewritten from the ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := entrypoint.OpenLibrary(config.NewConfig())
			if err != nil {
				return err
			}
			defer lib.Close()
			return c.Run(cmd.Context(), lib.Ledger, lib.Audit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&c.Repair, "repair", false, "Rewrite drifted flags")
	cmd.Flags().StringVar(&c.ReportDir, "report-dir", "", "Also save a JSON report of the run to this directory")
	return cmd
}

// AvailabilityReconciler is the part of the ledger the command drives.
type AvailabilityReconciler interface {
	CheckAvailability(ctx context.Context) ([]library.AvailabilityDrift, error)
	RepairAvailability(ctx context.Context) ([]library.AvailabilityDrift, error)
}

func (c *ReconcileCommand) Run(ctx context.Context, ledger AvailabilityReconciler, auditLog *audit.Service, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	action, run := "availability_check", ledger.CheckAvailability
	if c.Repair {
		action, run = "availability_repair", ledger.RepairAvailability
	}

	drift, err := run(ctx)
	if auditLog != nil {
		repaired := 0
		if c.Repair && err == nil {
			repaired = len(drift)
		}
		auditLog.LogMaintenance(audit.Actor{}, action, len(drift), repaired, err)
	}
	if err != nil {
		return err
	}

	if len(drift) == 0 {
		fmt.Fprintln(out, "All availability flags match the loan ledger.")
	} else {
		fmt.Fprintf(out, "%-6s  %-40s  %-9s  %s\n", "BOOK", "TITLE", "FLAGGED", "EXPECTED")
		for _, d := range drift {
			fmt.Fprintf(out, "%-6d  %-40s  %-9t  %t\n", d.BookID, truncate(d.Title, 40), d.Flagged, d.Expected)
		}
		if c.Repair {
			fmt.Fprintf(out, "Repaired %d book(s).\n", len(drift))
		} else {
			fmt.Fprintf(out, "%d book(s) out of sync; run with --repair to fix.\n", len(drift))
		}
	}

	if c.ReportDir != "" {
		name, err := audit.NewReportWriter(c.ReportDir).Save(action, drift)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Report: %s\n", name)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
