// Package extcap implements the Wireshark extcap side of the bridge: it
// advertises the dataplane interfaces as capturable extcap interfaces and,
// for a capture session, turns the relayed datagram stream back into a pcap
// stream on the fifo Wireshark provides.
package extcap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"icc.tech/pcap-bridge/internal/agent"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/version"
)

// tokenPrefix namespaces the extcap interface values so they cannot collide
// with local capture interfaces.
const tokenPrefix = "vpp_"

const helpURL = "https://icc.tech/pcap-bridge"

// FormatToken renders an interface id as an extcap interface value.
func FormatToken(id uint32) string {
	return tokenPrefix + strconv.FormatUint(uint64(id), 10)
}

// ParseToken extracts the interface id from an extcap interface value.
func ParseToken(token string) (uint32, error) {
	num, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: token %q", core.ErrInterfaceNotFound, token)
	}
	id, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: token %q", core.ErrInterfaceNotFound, token)
	}
	return uint32(id), nil
}

// WriteInterfaces prints the extcap banner and one interface stanza per
// dataplane interface, in the exact key order Wireshark's extcap parser
// expects.
func WriteInterfaces(w io.Writer, list []core.InterfaceInfo) error {
	if _, err := fmt.Fprintf(w, "extcap {version=%s}{help=%s}\n", version.Version, helpURL); err != nil {
		return err
	}
	for _, info := range list {
		display := "VPP: " + info.Name
		if info.Description != "" {
			display += " (" + info.Description + ")"
		}
		if _, err := fmt.Fprintf(w, "interface {value=%s}{display=%s}\n", FormatToken(info.InterfaceID), display); err != nil {
			return err
		}
	}
	return nil
}

// WriteDLTs prints the data link type stanza. Every interface relays raw
// Ethernet frames.
func WriteDLTs(w io.Writer) error {
	_, err := fmt.Fprintln(w, "dlt {number=1}{name=EN10MB}{display=Ethernet}")
	return err
}

// WriteConfig prints the per-interface configuration arguments shown in the
// Wireshark capture options dialog.
func WriteConfig(w io.Writer) error {
	lines := []string{
		"arg {number=0}{call=--agent}{display=Agent address}{tooltip=host:port of the dataplane agent REST endpoint}{type=string}{default=127.0.0.1:8080}",
		"arg {number=1}{call=--direction}{display=Direction}{tooltip=Which traffic directions to capture}{type=selector}{default=both}",
		"value {arg=1}{value=both}{display=Both}{default=true}",
		"value {arg=1}{value=rx}{display=Receive only}",
		"value {arg=1}{value=tx}{display=Transmit only}",
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// ListInterfaces fetches the interface inventory from the agent and prints
// the extcap stanzas.
func ListInterfaces(ctx context.Context, w io.Writer, client *agent.Client) error {
	list, err := client.Interfaces(ctx)
	if err != nil {
		return err
	}
	return WriteInterfaces(w, list)
}
