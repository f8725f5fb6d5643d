package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/agent"
	"icc.tech/pcap-bridge/internal/extcap"
	"icc.tech/pcap-bridge/internal/log"
)

var (
	extcapListInterfaces bool
	extcapDLTs           bool
	extcapConfig         bool
	extcapVersion        string
	extcapInterface      string
	extcapCapture        bool
	extcapFifo           string
	extcapAgent          string
	extcapDirection      string
	extcapLogFile        string
)

// extcapCmd implements the Wireshark extcap session protocol. Wireshark
// calls it through a small wrapper placed in its extcap directory, e.g.
//
//	#!/bin/sh
//	exec /usr/bin/pcap-bridge extcap "$@"
var extcapCmd = &cobra.Command{
	Use:   "extcap",
	Short: "Wireshark extcap entry point",
	Long: `Wireshark extcap entry point.

Advertises the dataplane interfaces of a bridge agent as extcap capture
interfaces and, for a capture session, streams the relayed packets as pcap
into the fifo Wireshark provides. Diagnostics go to the log file only;
stdout belongs to Wireshark.`,
	Run: func(cmd *cobra.Command, args []string) {
		runExtcap()
	},
}

func init() {
	f := extcapCmd.Flags()
	f.BoolVar(&extcapListInterfaces, "extcap-interfaces", false, "list capture interfaces")
	f.BoolVar(&extcapDLTs, "extcap-dlts", false, "list DLTs of an interface")
	f.BoolVar(&extcapConfig, "extcap-config", false, "list configuration options of an interface")
	f.StringVar(&extcapVersion, "extcap-version", "", "Wireshark version (informational)")
	f.StringVar(&extcapInterface, "extcap-interface", "", "extcap interface token (e.g. vpp_1)")
	f.BoolVar(&extcapCapture, "capture", false, "start a capture session")
	f.StringVar(&extcapFifo, "fifo", "", "fifo to write the pcap stream to")
	f.StringVar(&extcapAgent, "agent", "127.0.0.1:8080", "bridge agent REST address")
	f.StringVar(&extcapDirection, "direction", "both", "traffic direction: rx, tx or both")
	f.StringVar(&extcapLogFile, "log-file", "", "diagnostic log file (default: no logging)")
}

// initExtcapLogging routes diagnostics away from stdout, which carries
// extcap stanzas or the capture stream.
func initExtcapLogging() {
	cfg := log.Config{
		Level:   "info",
		Pattern: "%time [%level] %field %msg\n",
		Time:    "2006-01-02 15:04:05.000",
		Console: false,
	}
	if extcapLogFile != "" {
		cfg.File.Enabled = true
		cfg.File.Path = extcapLogFile
		cfg.File.MaxSizeMB = 10
		cfg.File.MaxBackups = 2
	}
	log.Init(&cfg)
}

func runExtcap() {
	initExtcapLogging()
	ctx := context.Background()

	switch {
	case extcapListInterfaces:
		client := agent.NewClient(extcapAgent)
		if err := extcap.ListInterfaces(ctx, os.Stdout, client); err != nil {
			log.GetLogger().WithError(err).Error("listing interfaces")
			os.Exit(1)
		}

	case extcapDLTs:
		if err := extcap.WriteDLTs(os.Stdout); err != nil {
			os.Exit(1)
		}

	case extcapConfig:
		if err := extcap.WriteConfig(os.Stdout); err != nil {
			os.Exit(1)
		}

	case extcapCapture:
		if extcapFifo == "" || extcapInterface == "" {
			log.GetLogger().Error("capture requires --fifo and --extcap-interface")
			os.Exit(1)
		}
		// Wireshark stops a capture with SIGTERM.
		ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer cancel()
		err := extcap.RunCapture(ctx, extcap.CaptureOptions{
			Token:     extcapInterface,
			Fifo:      extcapFifo,
			AgentAddr: extcapAgent,
			Direction: extcapDirection,
		})
		if err != nil {
			log.GetLogger().WithError(err).Error("capture session failed")
			os.Exit(1)
		}

	default:
		extcapCmd.Usage()
		os.Exit(1)
	}
}
