package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/command"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show relay statistics",
	Long: `Query the running daemon for relay statistics.

Shows: transport state, queue overflow count and per-interface packet and
byte counters split by direction.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStatsCommand()
	},
}

func runStatsCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.Stats(context.Background())
	if err != nil {
		exitWithError("failed to query stats", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("bridge_stats failed: %s", resp.Error.Message), nil)
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(resultJSON))
}
