package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stelatos/starkverify/internal/observability"
	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
	"github.com/stelatos/starkverify/pkg/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past verification jobs",
	Long: `Inspect the local record of past verification jobs.

Every submission and observed status change is written to a local
SQLite ledger. These commands query and maintain that ledger; they
never contact the verification service except for 'recheck'.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded verification jobs",
	RunE:  runHistoryList,
}

var historyStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the recorded state of one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryStatus,
}

var historyRecheckCmd = &cobra.Command{
	Use:   "recheck",
	Short: "Refresh pending entries from the service",
	Long: `Refresh every non-terminal ledger entry with one status request
against the verification service and record the outcome.`,
	RunE: runHistoryRecheck,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old ledger entries",
	RunE:  runHistoryClean,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	RunE:  runHistoryStats,
}

var (
	historyListStatus  string
	historyListNetwork string
	historyListLimit   int
	historyCleanDays   int
	historyCleanAll    bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyRecheckCmd)
	historyCmd.AddCommand(historyCleanCmd)
	historyCmd.AddCommand(historyStatsCmd)

	historyListCmd.Flags().StringVar(&historyListStatus, "status", "", "Filter by status (Submitted, Processing, Success, Fail, ...)")
	historyListCmd.Flags().StringVar(&historyListNetwork, "network", "", "Filter by network")
	historyListCmd.Flags().IntVar(&historyListLimit, "limit", 50, "Maximum entries to show (0 = no limit)")

	historyCleanCmd.Flags().IntVar(&historyCleanDays, "older-than", 30, "Delete entries older than this many days")
	historyCleanCmd.Flags().BoolVar(&historyCleanAll, "all", false, "Delete the entire history")
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openHistoryStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(ctx, history.Filter{
		Status:  historyListStatus,
		Network: historyListNetwork,
		Limit:   historyListLimit,
	})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read history", err)
	}

	if outputFormat() == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	fmt.Fprint(out, output.FormatHistoryTable(records))
	return nil
}

func runHistoryStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openHistoryStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetByJobID(ctx, args[0])
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return exitError(foundry.ExitInvalidArgument, "No local record for job", err)
		}
		return exitError(foundry.ExitFileReadError, "Cannot read history", err)
	}

	if outputFormat() == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprint(out, output.FormatHistoryTable([]history.Record{rec}))
	return nil
}

func runHistoryRecheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openHistoryStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	client, err := newAPIClient()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve verification endpoint", err)
	}

	records, err := store.List(ctx, history.Filter{})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read history", err)
	}

	checked, updated := 0, 0
	for _, rec := range records {
		if api.ParseJobStatus(rec.Status).IsTerminal() {
			continue
		}
		checked++

		result, err := client.GetJobStatus(ctx, rec.JobID)
		newStatus := ""
		switch {
		case err == nil:
			newStatus = result.Job.Status.String()
		default:
			if status, ok := terminalLedgerStatus(err); ok {
				newStatus = status
			} else {
				observability.CLILogger.Warn("Recheck failed for job",
					zap.String("job_id", rec.JobID),
					zap.Error(err))
				continue
			}
		}

		if newStatus != rec.Status {
			if err := store.UpdateStatus(ctx, rec.JobID, newStatus); err != nil {
				observability.CLILogger.Warn("Cannot update ledger entry",
					zap.String("job_id", rec.JobID),
					zap.Error(err))
				continue
			}
			updated++
			fmt.Fprintf(out, "%s: %s -> %s\n", rec.JobID, rec.Status, newStatus)
		}
	}

	fmt.Fprintf(out, "Rechecked %d pending jobs, %d updated.\n", checked, updated)
	return nil
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openHistoryStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	var deleted int64
	if historyCleanAll {
		deleted, err = store.DeleteAll(ctx)
	} else {
		deleted, err = store.DeleteOlderThan(ctx, historyCleanDays)
	}
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot clean history", err)
	}

	fmt.Fprintf(out, "Deleted %d history entries.\n", deleted)
	return nil
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openHistoryStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read history", err)
	}

	if outputFormat() == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprint(out, output.FormatHistoryStats(stats))
	if avg, ok, err := store.AverageVerificationSeconds(ctx, 20, 3); err == nil && ok {
		fmt.Fprintf(out, "Average verification time: %.0fs (last successes)\n", avg)
	}
	return nil
}
