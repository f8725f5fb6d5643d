package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/command"
)

var disableCmd = &cobra.Command{
	Use:   "disable <interface>",
	Short: "Disable packet capture on an interface",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDisableCommand(args[0])
	},
}

func runDisableCommand(iface string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.Disable(context.Background(), iface)
	if err != nil {
		exitWithError("failed to disable capture", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("disable failed: %s", resp.Error.Message), nil)
	}
	fmt.Printf("capture disabled on %s\n", iface)
}
