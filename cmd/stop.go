package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/command"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.Shutdown(context.Background())
	if err != nil {
		exitWithError("daemon not reachable", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("daemon_shutdown failed: %s", resp.Error.Message), nil)
	}
	fmt.Println("daemon shutting down")
}
