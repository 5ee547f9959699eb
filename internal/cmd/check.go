package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/stelatos/starkverify/pkg/output"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a class hash is known on-chain",
	Long: `Check whether a class hash exists on the configured network before
submitting a verification job.

Examples:
  starkverify check --class-hash 0x044d...
  starkverify check --class-hash 0x044d... --network mainnet --format json`,
	RunE: runCheck,
}

var checkClassHash string

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkClassHash, "class-hash", "", "Class hash to look up (required)")

	_ = checkCmd.MarkFlagRequired("class-hash")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := newAPIClient()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve verification endpoint", err)
	}

	exists, err := client.GetClass(ctx, checkClassHash)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Class lookup failed", err)
	}

	if outputFormat() == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			ClassHash string `json:"class_hash"`
			OnChain   bool   `json:"on_chain"`
		}{ClassHash: checkClassHash, OnChain: exists}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot render result", err)
		}
	} else if exists {
		fmt.Fprintf(out, "✅ Class %s exists on-chain\n", checkClassHash)
	} else {
		fmt.Fprintf(out, "❌ Class %s not found on-chain\n", checkClassHash)
	}

	if !exists {
		return exitError(foundry.ExitInvalidArgument, "Class not found",
			fmt.Errorf("class %s is not declared on network %s", checkClassHash, cliConfig.Network))
	}
	return nil
}
