package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saccohub/settlement/internal/currency"
)

var queryProvider bool

var statusCmd = &cobra.Command{
	Use:   "status [checkoutRequestId]",
	Short: "Show the local status of a payment",
	Long: `Show what the engine knows about a payment without calling the provider.
With --query the provider is asked first and the answer is applied.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&queryProvider, "query", false, "Ask the provider and resolve before printing")
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if queryProvider {
		res, err := e.recon.QueryAndResolve(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("query %s: %w", args[0], err)
		}
		fmt.Printf("Query outcome: %s\n", res.Outcome)
	}

	view, err := e.recon.LocalStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(view)
	}

	code := "-"
	if view.ResultCode != nil {
		code = fmt.Sprint(*view.ResultCode)
	}
	fmt.Printf("Payment %s\n", args[0])
	fmt.Printf("  Status:      %s\n", view.Status)
	fmt.Printf("  Result:      %s %s\n", code, view.ResultDesc)
	fmt.Printf("  Amount:      %s\n", currency.Format(view.Amount, currency.Default))
	fmt.Printf("  Phone:       %s\n", view.PhoneNumber)
	fmt.Printf("  Receipt:     %s\n", valueOrDash(view.TransactionID))
	return nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
