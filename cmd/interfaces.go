package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/pcap-bridge/internal/command"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capturable interfaces",
	Run: func(cmd *cobra.Command, args []string) {
		runInterfacesCommand()
	},
}

func runInterfacesCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)

	resp, err := client.Interfaces(context.Background())
	if err != nil {
		exitWithError("failed to list interfaces", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("bridge_interfaces failed: %s", resp.Error.Message), nil)
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(resultJSON))
}
