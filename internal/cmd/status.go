package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/output"
	"github.com/stelatos/starkverify/pkg/verification"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of a verification job",
	Long: `Check the current status of a verification job.

A single check issues one status request. With --watch the command
polls until the job settles, showing live progress.

Examples:
  starkverify status --job 7c9f3a1e
  starkverify status --job 7c9f3a1e --watch
  starkverify status --job 7c9f3a1e --format json`,
	RunE: runStatus,
}

var (
	statusJobID string
	statusWatch bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusJobID, "job", "j", "", "Verification job ID (required)")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Poll until the job settles")

	_ = statusCmd.MarkFlagRequired("job")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := newAPIClient()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve verification endpoint", err)
	}

	store := openOptionalLedger(ctx)
	var ledger verification.Ledger
	if store != nil {
		defer func() { _ = store.Close() }()
		ledger = store
	}

	if statusWatch {
		svc := verification.NewService(client, ledger, cliConfig.Network)
		return watchJob(ctx, cmd, svc, store, statusJobID)
	}

	result, err := client.GetJobStatus(ctx, statusJobID)
	if err != nil {
		// A terminal failure still freezes the ledger entry.
		if store != nil {
			if status, ok := terminalLedgerStatus(err); ok {
				_ = store.UpdateStatus(ctx, statusJobID, status)
			}
		}

		var notFound *api.JobNotFoundError
		if errors.As(err, &notFound) {
			return exitError(foundry.ExitInvalidArgument, "Job not found", err)
		}
		var verErr *api.VerificationError
		if errors.As(err, &verErr) {
			return exitError(foundry.ExitInvalidArgument, "Verification failed", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Status check failed", err)
	}

	if store != nil {
		_ = store.UpdateStatus(ctx, statusJobID, result.Job.Status.String())
	}

	text, err := output.FormatStatus(result.Job, outputFormat(), ledgerETA(ctx, store), time.Now())
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot render status", err)
	}
	fmt.Fprintln(out, text)
	return nil
}

// terminalLedgerStatus maps a terminal status-check failure to the
// ledger status string it should freeze.
func terminalLedgerStatus(err error) (string, bool) {
	var verErr *api.VerificationError
	if errors.As(err, &verErr) {
		if verErr.Category == api.CategoryCompilation {
			return api.StatusCompileFailed.String(), true
		}
		return api.StatusFail.String(), true
	}
	return "", false
}
