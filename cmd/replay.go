package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/source/file"
)

var (
	replayFile        string
	replayDestination string
)

// replayCmd pushes a pcap file through the relay, standing in for a live
// dataplane when testing a receiver or an extcap session.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a pcap file through the relay",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReplayCommand(); err != nil {
			exitWithError("replay failed", err)
		}
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "pcap file to replay")
	replayCmd.Flags().StringVarP(&replayDestination, "destination", "d", "",
		"capture destination (ipv4:port or unix socket path)")
	replayCmd.MarkFlagRequired("file")
	replayCmd.MarkFlagRequired("destination")
}

func runReplayCommand() error {
	const ifaceID = 0

	b := bridge.New(bridge.NewStaticSource([]core.InterfaceInfo{
		{InterfaceID: ifaceID, Name: "replay0", Description: replayFile},
	}), bridge.Config{})
	defer b.Shutdown()

	if err := b.Enable(ifaceID, replayDestination, core.FilterBoth); err != nil {
		return err
	}

	src, err := file.NewSource(replayFile)
	if err != nil {
		return err
	}
	if err := src.Start(context.Background()); err != nil {
		return err
	}
	defer src.Stop()

	var count uint64
	for {
		data, ci, err := src.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		b.Tap(ifaceID, core.DirectionRx, ci.Timestamp, data)
		count++
	}

	// Give the batching sender a chance to flush the tail.
	time.Sleep(1500 * time.Millisecond)
	fmt.Printf("replayed %d packets from %s to %s\n", count, replayFile, replayDestination)
	return nil
}
