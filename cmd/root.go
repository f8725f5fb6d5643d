// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/version"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcap-bridge",
	Short: "pcap-bridge - lossy packet relay from a dataplane to a packet analyzer",
	Long: `pcap-bridge relays captured packets from a dataplane to a packet
analyzer with minimal overhead on the forwarding path.

The agent side taps packets into a bounded queue and ships them in batched
datagrams (UDP or unix socket) to wherever a capture session points it. The
analyzer side decodes the stream and feeds Wireshark through extcap, so
remote dataplane interfaces show up as ordinary capture interfaces.

Control surfaces:
  - REST endpoint for the analyzer host (list/enable/disable/stats)
  - Local CLI via Unix Domain Socket against a running daemon
  - Wireshark extcap session protocol`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (empty: built-in defaults)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/pcap-bridge.sock",
		"daemon control socket path")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(extcapCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(replayCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
