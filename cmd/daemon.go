package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the bridge agent daemon in foreground",
	Long: `Run the bridge agent daemon process in foreground.

The daemon will:
  1. Load configuration from the config file (or defaults)
  2. Initialize logging and metrics
  3. Start the REST control endpoint for the analyzer side
  4. Start the UDS server for local CLI control
  5. Open live capture rings when capture.live is enabled
  6. Handle SIGTERM/SIGINT for graceful shutdown`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			exitWithError("daemon failed", err)
		}
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return d.Run()
}
