package cmd

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stelatos/starkverify/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the local environment and the configured
verification endpoint.

Examples:
  starkverify doctor
  starkverify doctor --network mainnet`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) {
	observability.CLILogger.Info("=== starkverify doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 6

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Gofulmen access
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 3: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 4: History store
	if store, err := openHistoryStore(cmd.Context()); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking history store... ❌ %v", checkNum, totalChecks, err),
			zap.String("path", historyDBPath()))
		allChecks = false
	} else {
		_ = store.Close()
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking history store... ✅ %s", checkNum, totalChecks, historyDBPath()),
			zap.String("path", historyDBPath()))
	}
	checkNum++

	// Check 5: Endpoint resolution
	baseURL, err := cliConfig.ResolveAPIURL()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking endpoint... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking endpoint... ✅ %s", checkNum, totalChecks, baseURL),
			zap.String("url", baseURL),
			zap.String("network", cliConfig.Network))
		if !checkEndpointReachable(cmd, baseURL, checkNum+1, totalChecks) {
			allChecks = false
		}
	}
	checkNum++

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your starkverify installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// checkEndpointReachable issues one HEAD request against the resolved
// endpoint. Any HTTP answer counts as reachable; only transport
// failures fail the check.
func checkEndpointReachable(cmd *cobra.Command, baseURL string, checkNum, totalChecks int) bool {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodHead, baseURL, nil)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking connectivity... ❌ %v", checkNum, totalChecks, err))
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking connectivity... ❌ Cannot reach %s", checkNum, totalChecks, baseURL),
			zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking connectivity... ✅ HTTP %d", checkNum, totalChecks, resp.StatusCode),
		zap.Int("status", resp.StatusCode))
	return true
}
