package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one position reconciliation pass",
	Long: `Reconcile fetches broker positions, compares them against the local
cache, applies the standard resolutions, and prints the outcome. The run
lands in the audit table like any scheduled pass.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.auth.EnsureSession(ctx); err != nil {
		return errors.Wrap(err, "establish session")
	}

	result, err := c.reconciler.Reconcile(ctx, schema.TriggerManual)
	if err != nil {
		return errors.Wrap(err, "reconcile")
	}
	printReconciliation(result)
	return nil
}

func printReconciliation(result schema.ReconciliationResult) {
	fmt.Printf("Reconciliation (%s) finished in %s\n", result.Trigger, result.Duration.Round(time.Millisecond))
	fmt.Printf("  Broker positions: %d\n", result.BrokerCount)
	fmt.Printf("  Local positions:  %d\n", result.LocalCount)
	fmt.Printf("  Matched:          %d\n", result.MatchedCount)
	fmt.Printf("  Mismatches:       %d (resolved %d)\n", result.MismatchCount(), result.ResolvedCount)
	for _, m := range result.Mismatches {
		status := "resolved"
		if !m.Resolved {
			status = "unresolved"
		}
		line := fmt.Sprintf("    %-17s %-20s broker=%d local=%d %s via %s",
			m.Type, m.InstrumentKey, m.BrokerQty, m.LocalQty, status, m.Resolution)
		if m.Detail != "" {
			line += " (" + m.Detail + ")"
		}
		fmt.Println(line)
	}
	if result.Clean() {
		fmt.Println("Broker and local state are consistent.")
	}
}
