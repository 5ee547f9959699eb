package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stelatos/starkverify/internal/config"
	"github.com/stelatos/starkverify/internal/observability"
	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
	"github.com/stelatos/starkverify/pkg/output"
	"github.com/stelatos/starkverify/pkg/project"
	"github.com/stelatos/starkverify/pkg/verification"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Submit a contract class for verification",
	Long: `Submit a Scarb project for class verification.

With --class-hash the command verifies a single contract. When the
config file declares a contracts list the command switches to batch
mode and submits every entry in order.

Examples:
  starkverify verify --class-hash 0x044d... --contract-name counter
  starkverify verify --class-hash 0x044d... --contract-name counter --watch
  starkverify verify --dry-run
  starkverify verify --watch --fail-fast`,
	RunE: runVerify,
}

var (
	verifyClassHash    string
	verifyContractName string
	verifyPath         string
	verifyLicense      string
	verifyScarbVersion string
	verifyCairoVersion string
	verifyWatch        bool
	verifyDryRun       bool
	verifyTestFiles    bool
	verifyLockFile     bool
	verifyExcludes     []string
	verifyFailFast     bool
	verifyBatchDelay   time.Duration
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyClassHash, "class-hash", "", "Class hash of the declared contract")
	verifyCmd.Flags().StringVar(&verifyContractName, "contract-name", "", "Contract name declared in the project")
	verifyCmd.Flags().StringVarP(&verifyPath, "path", "p", ".", "Scarb project directory")
	verifyCmd.Flags().StringVar(&verifyLicense, "license", "", "SPDX license identifier for the submission")
	verifyCmd.Flags().StringVar(&verifyScarbVersion, "scarb-version", "", "Scarb version used to build the project")
	verifyCmd.Flags().StringVar(&verifyCairoVersion, "cairo-version", "", "Cairo compiler version (defaults to Scarb.toml cairo-version)")
	verifyCmd.Flags().BoolVarP(&verifyWatch, "watch", "w", false, "Wait for the verification result")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "Show what would be submitted without sending")
	verifyCmd.Flags().BoolVar(&verifyTestFiles, "test-files", false, "Include test files in the submission")
	verifyCmd.Flags().BoolVar(&verifyLockFile, "lock-file", false, "Include Scarb.lock in the submission")
	verifyCmd.Flags().StringArrayVar(&verifyExcludes, "exclude", nil, "Glob pattern to exclude (repeatable)")
	verifyCmd.Flags().BoolVar(&verifyFailFast, "fail-fast", false, "Abort a batch on the first submission error")
	verifyCmd.Flags().DurationVar(&verifyBatchDelay, "batch-delay", 0, "Delay between batch submissions")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := cliConfig

	if cmd.Flags().Changed("test-files") {
		cfg.TestFiles = verifyTestFiles
	}
	if cmd.Flags().Changed("lock-file") {
		cfg.LockFile = verifyLockFile
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.FailFast = verifyFailFast
	}
	if cmd.Flags().Changed("batch-delay") {
		cfg.BatchDelay = verifyBatchDelay
	}
	if verifyLicense == "" {
		verifyLicense = cfg.License
	}

	batchMode := len(cfg.Contracts) > 0 && verifyClassHash == ""
	if !batchMode && verifyClassHash == "" {
		return exitError(foundry.ExitInvalidArgument, "Nothing to verify",
			fmt.Errorf("provide --class-hash or a contracts list in %s", config.ConfigFileName))
	}

	excludes := append(append([]string{}, cfg.Excludes...), verifyExcludes...)
	collection, err := project.Collect(project.Options{
		Root:             verifyPath,
		IncludeTestFiles: cfg.TestFiles,
		IncludeLockFile:  cfg.LockFile,
		Excludes:         excludes,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Project collection failed", err)
	}

	observability.CLILogger.Debug("Collected project",
		zap.String("root", collection.Root),
		zap.Int("files", len(collection.Files)),
		zap.String("package", collection.Manifest.Package.Name))

	if batchMode {
		return runVerifyBatch(ctx, cmd, collection)
	}
	return runVerifySingle(ctx, cmd, collection)
}

// buildSubmitInput assembles the submission for one contract from the
// collected project. An empty packageName keeps the manifest package.
func buildSubmitInput(collection *project.Collection, classHash, contractName, license, packageName string) (verification.SubmitInput, error) {
	contractFile, err := collection.FindContractFile(contractName)
	if err != nil {
		return verification.SubmitInput{}, err
	}

	m := collection.Manifest
	cairoVersion := verifyCairoVersion
	if cairoVersion == "" {
		cairoVersion = m.Package.CairoVersion
	}
	if license == "" {
		license = m.Package.License
	}
	if packageName == "" {
		packageName = m.Package.Name
	}

	buildTool := "scarb"
	dojoVersion := ""
	if v, ok := m.DojoVersion(); ok {
		buildTool = "dojo"
		dojoVersion = v
	}

	return verification.SubmitInput{
		ClassHash:    classHash,
		ContractName: contractName,
		License:      license,
		Meta: api.ProjectMetadata{
			CairoVersion:   cairoVersion,
			ScarbVersion:   verifyScarbVersion,
			PackageName:    packageName,
			ContractFile:   contractFile,
			ProjectDirPath: ".",
			BuildTool:      buildTool,
			DojoVersion:    dojoVersion,
		},
		Files: collection.Files,
	}, nil
}

func runVerifySingle(ctx context.Context, cmd *cobra.Command, collection *project.Collection) error {
	out := cmd.OutOrStdout()

	in, err := buildSubmitInput(collection, verifyClassHash, verifyContractName, verifyLicense, "")
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot prepare submission", err)
	}

	if verifyDryRun {
		printSubmissionPlan(out, in)
		return nil
	}

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
	svc := verification.NewService(client, ledger, cliConfig.Network)

	jobID, err := svc.Submit(ctx, in)
	if err != nil {
		if jobID == "" {
			return exitError(foundry.ExitExternalServiceUnavailable, "Submission failed", err)
		}
		// Accepted remotely; only the local record failed.
		observability.CLILogger.Warn("Job accepted but not recorded locally", zap.Error(err))
	}

	observability.CLILogger.Info("Verification job submitted",
		zap.String("job_id", jobID),
		zap.String("class_hash", in.ClassHash),
		zap.String("network", cliConfig.Network))
	fmt.Fprintf(out, "Verification job submitted.\nJob ID: %s\n", jobID)

	if !verifyWatch && !cliConfig.Watch {
		fmt.Fprintf(out, "\nCheck progress with: starkverify status --job %s\n", jobID)
		return nil
	}

	return watchJob(ctx, cmd, svc, store, jobID)
}

// watchJob polls a job to its terminal outcome with a live inline
// status line, then prints the final report.
func watchJob(ctx context.Context, cmd *cobra.Command, svc *verification.Service, store *history.Store, jobID string) error {
	out := cmd.OutOrStdout()
	eta := ledgerETA(ctx, store)

	job, err := svc.Watch(ctx, jobID, func(j api.VerificationJob) {
		output.WriteInline(out, output.FormatInlineStatus(j, eta, time.Now()))
	})
	fmt.Fprintln(out)

	if err != nil {
		if api.IsInProgress(err) {
			fmt.Fprintf(out, "Verification still in progress. Check later with: starkverify status --job %s\n", jobID)
			return nil
		}
		var verErr *api.VerificationError
		if errors.As(err, &verErr) {
			return exitError(foundry.ExitInvalidArgument, "Verification failed", err)
		}
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Watch cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Status polling failed", err)
	}

	text, err := output.FormatStatus(job, outputFormat(), eta, time.Now())
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot render status", err)
	}
	fmt.Fprintln(out, text)
	return nil
}

func runVerifyBatch(ctx context.Context, cmd *cobra.Command, collection *project.Collection) error {
	out := cmd.OutOrStdout()
	cfg := cliConfig

	contracts := make([]verification.BatchContract, 0, len(cfg.Contracts))
	for _, c := range cfg.Contracts {
		contracts = append(contracts, verification.BatchContract{
			ClassHash:    c.ClassHash,
			ContractName: c.ContractName,
			Package:      c.Package,
		})
	}

	if verifyDryRun {
		printBatchPlan(out, contracts)
		return nil
	}

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

	orch := verification.NewOrchestrator(client, ledger, cfg.Network, verification.BatchConfig{
		Delay:          cfg.BatchDelay,
		FailFast:       cfg.FailFast,
		DefaultPackage: cfg.DefaultPackage,
	})

	submit := func(ctx context.Context, contract verification.BatchContract) (string, api.ProjectMetadata, error) {
		in, err := buildSubmitInput(collection, contract.ClassHash, contract.ContractName, verifyLicense, contract.Package)
		if err != nil {
			return "", api.ProjectMetadata{}, err
		}
		jobID, err := client.VerifyClass(ctx, in.ClassHash, in.License, in.ContractName, in.Meta, in.Files)
		return jobID, in.Meta, err
	}

	runID := uuid.New().String()
	observability.CLILogger.Info("Starting batch verification",
		zap.String("run_id", runID),
		zap.Int("contracts", len(contracts)),
		zap.String("network", cfg.Network),
		zap.Bool("fail_fast", cfg.FailFast))

	summary, err := orch.SubmitBatch(ctx, contracts, submit)
	if err != nil {
		fmt.Fprintln(out, output.FormatBatchSummary(summary))
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch submission aborted", err)
	}

	if shouldWatchBatch(verifyWatch || cfg.Watch, summary) {
		summary, err = orch.WatchBatch(ctx, summary, func(succeeded, pending, failed int) {
			output.WriteInline(out, output.FormatBatchProgress(succeeded, pending, failed))
		})
		fmt.Fprintln(out)
		if err != nil {
			return exitError(foundry.ExitSignalInt, "Batch watch interrupted", err)
		}
	}

	if outputFormat() == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot render summary", err)
		}
	} else {
		fmt.Fprintln(out, output.FormatBatchSummary(summary))
	}

	observability.CLILogger.Info("Batch verification finished",
		zap.String("run_id", runID),
		zap.Int("total", summary.Total),
		zap.Int("submitted", summary.Submitted),
		zap.Int("failed", batchFailures(summary)))

	if failed := batchFailures(summary); failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Batch verification incomplete",
			fmt.Errorf("%d of %d contracts did not verify", failed, summary.Total))
	}
	return nil
}

// shouldWatchBatch reports whether the tracking phase runs: only when
// watch was requested and at least one submission was accepted.
func shouldWatchBatch(watch bool, summary *verification.BatchSummary) bool {
	return watch && summary.Submitted > 0
}

// batchFailures counts entries that errored or reached a failing
// terminal status.
func batchFailures(summary *verification.BatchSummary) int {
	failed := 0
	for _, r := range summary.Results {
		if r.Error != "" {
			failed++
			continue
		}
		status := api.ParseJobStatus(r.Status)
		if status.IsTerminal() && status != api.StatusSuccess {
			failed++
		}
	}
	return failed
}

// printSubmissionPlan shows what a single verification would send.
func printSubmissionPlan(out io.Writer, in verification.SubmitInput) {
	fmt.Fprintln(out, "=== Verification Plan (dry-run) ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Class Hash:    %s\n", in.ClassHash)
	fmt.Fprintf(out, "Contract:      %s\n", in.ContractName)
	fmt.Fprintf(out, "Contract File: %s\n", in.Meta.ContractFile)
	fmt.Fprintf(out, "Package:       %s\n", in.Meta.PackageName)
	if in.License != "" {
		fmt.Fprintf(out, "License:       %s\n", in.License)
	}
	if in.Meta.CairoVersion != "" {
		fmt.Fprintf(out, "Cairo Version: %s\n", in.Meta.CairoVersion)
	}
	if in.Meta.DojoVersion != "" {
		fmt.Fprintf(out, "Dojo Version:  %s\n", in.Meta.DojoVersion)
	}
	fmt.Fprintf(out, "Build Tool:    %s\n", in.Meta.BuildTool)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Files (%d):\n", len(in.Files))
	for _, f := range in.Files {
		fmt.Fprintf(out, "  - %s\n", f.Name)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Nothing was submitted. Remove --dry-run to execute.")
}

// printBatchPlan shows what a batch verification would submit.
func printBatchPlan(out io.Writer, contracts []verification.BatchContract) {
	fmt.Fprintln(out, "=== Batch Verification Plan (dry-run) ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Contracts (%d):\n", len(contracts))
	for _, c := range contracts {
		pkg := c.Package
		if pkg == "" {
			pkg = cliConfig.DefaultPackage
		}
		if pkg != "" {
			fmt.Fprintf(out, "  - %s (%s, package %s)\n", c.ContractName, c.ClassHash, pkg)
		} else {
			fmt.Fprintf(out, "  - %s (%s)\n", c.ContractName, c.ClassHash)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Nothing was submitted. Remove --dry-run to execute.")
}
