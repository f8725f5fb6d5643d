package cmd

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/relay"
)

var (
	listenAddr    string
	listenHexdump bool
)

// listenCmd is a debugging aid: it plays the receiver role without any
// analyzer attached and prints every decoded record.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Debug listener that decodes and prints relayed packets",
	Long: `Listen for relayed capture datagrams and print every decoded record.

Useful for checking that an agent relays traffic before involving
Wireshark: point an enable at this listener's address and watch.`,
	Run: func(cmd *cobra.Command, args []string) {
		runListenCommand()
	},
}

func init() {
	listenCmd.Flags().StringVarP(&listenAddr, "addr", "a", "0.0.0.0:9999",
		"address to listen on (ipv4:port or unix socket path)")
	listenCmd.Flags().BoolVarP(&listenHexdump, "hexdump", "x", false,
		"hexdump packet payloads")
}

func runListenCommand() {
	network := "udp4"
	if strings.HasPrefix(listenAddr, "/") {
		network = "unixgram"
		defer os.Remove(listenAddr)
	}
	conn, err := net.ListenPacket(network, listenAddr)
	if err != nil {
		exitWithError("failed to listen", err)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	fmt.Printf("listening on %s, ctrl-c to stop\n", conn.LocalAddr())

	buf := make([]byte, relay.MaxDatagramSize)
	var total uint64
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			fmt.Printf("%d packets total\n", total)
			return
		}
		records, err := relay.DecodeDatagram(buf[:n])
		if err != nil {
			fmt.Printf("!! corrupt datagram tail from %v: %v\n", from, err)
		}
		for i := range records {
			rec := &records[i]
			total++
			ts := time.Unix(int64(rec.TsSec), int64(rec.TsUsec)*1000)
			fmt.Printf("#%d iface=%d dir=%s len=%d ts=%s\n",
				total, rec.InterfaceID, rec.Direction, len(rec.Payload),
				ts.Format("15:04:05.000000"))
			if listenHexdump {
				fmt.Print(hex.Dump(rec.Payload))
			}
		}
	}
}
