package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/command"
)

var (
	enableDestination string
	enableDirection   string
)

var enableCmd = &cobra.Command{
	Use:   "enable <interface>",
	Short: "Enable packet capture on an interface",
	Long: `Enable packet capture on a dataplane interface.

The destination is where captured packets are sent: an ipv4:port pair for
UDP, or an absolute path for a unix datagram socket. All concurrently
enabled interfaces share the destination of the first enable.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runEnableCommand(args[0])
	},
}

func init() {
	enableCmd.Flags().StringVarP(&enableDestination, "destination", "d", "",
		"capture destination (ipv4:port or unix socket path)")
	enableCmd.Flags().StringVar(&enableDirection, "direction", "both",
		"traffic direction to capture: rx, tx or both")
	enableCmd.MarkFlagRequired("destination")
}

func runEnableCommand(iface string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.Enable(context.Background(), iface, enableDestination, enableDirection)
	if err != nil {
		exitWithError("failed to enable capture", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("enable failed: %s", resp.Error.Message), nil)
	}
	fmt.Printf("capture enabled on %s -> %s\n", iface, enableDestination)
}
