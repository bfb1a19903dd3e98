package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepGrace time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-query stale pending payments and retry unposted settlements once",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepGrace, "grace", 0, "Only touch payments older than this (defaults to SWEEP_GRACE)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	grace := sweepGrace
	if grace <= 0 {
		grace = e.cfg.SweepGrace
	}
	report, err := e.recon.Sweep(cmd.Context(), grace)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	if jsonOutput {
		return printJSON(report)
	}

	fmt.Println("Sweep")
	fmt.Printf("  Queried:        %d\n", report.Queried)
	fmt.Printf("  Resolved:       %d\n", report.Resolved)
	fmt.Printf("  Still pending:  %d\n", report.StillPending)
	fmt.Printf("  Re-settled:     %d\n", report.Resettled)
	fmt.Printf("  To suspense:    %d\n", report.SentToSuspense)
	fmt.Printf("  Errors:         %d\n", report.Errors)
	return nil
}
