package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saccohub/settlement/internal/currency"
	"github.com/saccohub/settlement/internal/repository"
)

var (
	suspenseStatus string
	suspenseLimit  int
	resolvedBy     string
)

var suspenseCmd = &cobra.Command{
	Use:   "suspense",
	Short: "Inspect and resolve money parked in suspense",
}

var suspenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suspense records",
	Args:  cobra.NoArgs,
	RunE:  runSuspenseList,
}

var suspenseResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Mark a suspense record as manually matched",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuspenseResolve,
}

func init() {
	suspenseListCmd.Flags().StringVarP(&suspenseStatus, "status", "s", "NEW", "Filter by status (NEW, PROCESSED, or empty for all)")
	suspenseListCmd.Flags().IntVarP(&suspenseLimit, "limit", "n", 50, "Maximum results")

	suspenseResolveCmd.Flags().StringVar(&resolvedBy, "by", "", "Operator who matched the money")
	_ = suspenseResolveCmd.MarkFlagRequired("by")

	suspenseCmd.AddCommand(suspenseListCmd)
	suspenseCmd.AddCommand(suspenseResolveCmd)
}

func runSuspenseList(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	items, total, err := e.suspense.List(cmd.Context(), repository.SuspenseFilter{Status: suspenseStatus, Limit: suspenseLimit})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]any{"suspense": items, "total": total})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tAMOUNT\tSTATUS\tEXCEPTION")
	for _, sp := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sp.ID, sp.SourceReference, currency.Format(sp.Amount, currency.Default), sp.Status, sp.ExceptionType)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d shown\n", len(items), total)
	return nil
}

func runSuspenseResolve(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	sp, err := e.suspense.Resolve(cmd.Context(), args[0], resolvedBy)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	if jsonOutput {
		return printJSON(sp)
	}
	fmt.Printf("Suspense %s marked %s by %s\n", sp.ID, sp.Status, resolvedBy)
	return nil
}
