package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stelatos/starkverify/internal/mockapi"
	"github.com/stelatos/starkverify/internal/observability"
)

var mockServerCmd = &cobra.Command{
	Use:    "mock-server",
	Short:  "Run a local mock verification service",
	Hidden: true,
	Long: `Run a local stand-in for the verification service.

Jobs advance one status stage per fetch. Contract names containing
"compile_fail" or "fail" follow the matching failure script, so watch
and batch flows can be exercised end to end without a real backend.

Point the CLI at it with: starkverify verify --url http://127.0.0.1:8899`,
	RunE: runMockServer,
}

var (
	mockServerHost string
	mockServerPort int
)

func init() {
	rootCmd.AddCommand(mockServerCmd)

	mockServerCmd.Flags().StringVar(&mockServerHost, "host", "127.0.0.1", "Listen host")
	mockServerCmd.Flags().IntVar(&mockServerPort, "port", 8899, "Listen port")
}

func runMockServer(cmd *cobra.Command, _ []string) error {
	srv := mockapi.New(mockServerHost, mockServerPort)

	observability.CLILogger.Info("Mock verification service listening",
		zap.String("addr", srv.Addr()))
	fmt.Fprintf(cmd.OutOrStdout(), "Mock verification service listening on http://%s\n", srv.Addr())

	if err := srv.ListenAndServe(); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Mock server stopped", err)
	}
	return nil
}
