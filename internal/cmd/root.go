// Package cmd wires the starkverify CLI: command definitions, flag
// handling, configuration loading, and the shared helpers commands
// use to reach the verification service and the local history store.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stelatos/starkverify/internal/config"
	"github.com/stelatos/starkverify/internal/observability"
	"github.com/stelatos/starkverify/pkg/api"
	"github.com/stelatos/starkverify/pkg/history"
	"github.com/stelatos/starkverify/pkg/output"
)

const appName = "starkverify"

// versionInfo holds build metadata stamped through ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the build.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	rootVerbose bool
	rootNetwork string
	rootURL     string
	rootFormat  string
)

// cliConfig is the merged configuration for the current invocation,
// built in the root PersistentPreRunE: flags over environment over
// config file over defaults.
var cliConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "starkverify",
	Short: "Verify Starknet contract classes against their source",
	Long: `starkverify submits Scarb projects to the Voyager class verification
service, tracks the resulting jobs to completion, and keeps a local
history of past verifications.

Examples:
  starkverify verify --class-hash 0x044d... --contract-name counter --watch
  starkverify status --job 7c9f3a
  starkverify history list --status Success`,
	SilenceUsage:      true,
	PersistentPreRunE: setupCLI,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootNetwork, "network", "", "Target network (mainnet, sepolia, dev)")
	rootCmd.PersistentFlags().StringVar(&rootURL, "url", "", "Verification service URL (overrides --network)")
	rootCmd.PersistentFlags().StringVarP(&rootFormat, "format", "f", "", "Output format (text, json, table)")
}

// setupCLI loads configuration, overlays command-line flags, and
// initializes logging before any command runs.
func setupCLI(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("network") {
		cfg.Network = rootNetwork
	}
	if cmd.Flags().Changed("url") {
		cfg.URL = rootURL
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = rootFormat
	}
	if rootVerbose {
		cfg.Verbose = true
	}

	if _, err := output.ParseFormat(cfg.Format); err != nil {
		return err
	}

	observability.InitCLILogger(versionInfo.Version, cfg.Verbose)
	cliConfig = cfg
	return nil
}

// Execute runs the CLI with the given context.
func Execute(ctx context.Context) error {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	return rootCmd.ExecuteContext(ctx)
}

// outputFormat returns the validated format selection.
func outputFormat() output.Format {
	format, err := output.ParseFormat(cliConfig.Format)
	if err != nil {
		return output.FormatText
	}
	return format
}

// newAPIClient resolves the service endpoint and builds the protocol
// client.
func newAPIClient() (*api.Client, error) {
	baseURL, err := cliConfig.ResolveAPIURL()
	if err != nil {
		return nil, err
	}
	return api.NewClient(api.Config{BaseURL: baseURL})
}

// historyDBPath is the ledger location under the per-user application
// data directory.
func historyDBPath() string {
	return filepath.Join(gfconfig.GetAppDataDir(appName), "history.db")
}

// openHistoryStore opens the local ledger, creating the database on
// first use.
func openHistoryStore(ctx context.Context) (*history.Store, error) {
	return history.Open(ctx, history.Config{Path: historyDBPath()})
}

// openOptionalLedger opens the history store, degrading to nil when
// it cannot be opened. Verification proceeds without local records.
func openOptionalLedger(ctx context.Context) *history.Store {
	store, err := openHistoryStore(ctx)
	if err != nil {
		observability.CLILogger.Warn("History store unavailable, continuing without local records",
			zap.String("path", historyDBPath()),
			zap.Error(err))
		return nil
	}
	return store
}

// ledgerETA derives the display-only completion estimate from recent
// ledger history.
func ledgerETA(ctx context.Context, store *history.Store) output.ETA {
	if store == nil {
		return output.ETA{}
	}
	avg, ok, err := store.AverageVerificationSeconds(ctx, 20, 3)
	if err != nil || !ok {
		return output.ETA{}
	}
	return output.ETA{Average: time.Duration(avg * float64(time.Second)), Valid: true}
}

// codedError pairs a user-facing message with the process exit code
// the failure maps to. The code never appears in the error text.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *codedError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, message: message, err: err}
}

// ExitCode recovers the exit code carried by exitError. Errors
// without one exit 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}
