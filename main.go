package main

import (
	"os"

	"icc.tech/pcap-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
