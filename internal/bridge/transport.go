// Package bridge implements the dataplane-side capture relay: the tap entry
// points, the bounded capture queue, the batching sender and the control
// surface that the agent front ends (REST, UDS) drive.
package bridge

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
)

// DestinationKind selects the datagram socket family of a binding.
type DestinationKind int

const (
	DestinationUDP DestinationKind = iota
	DestinationUnixDatagram
)

// maxUnixPathLen is the portable sun_path limit minus the NUL terminator.
const maxUnixPathLen = 107

// Destination is the parsed form of a control-surface destination string:
// either an IPv4 host:port pair (UDP) or an absolute filesystem path
// (unix datagram socket).
type Destination struct {
	Kind DestinationKind
	Host netip.Addr // UDP only
	Port int        // UDP only
	Path string     // unix datagram only
}

// String renders the destination back into control-surface syntax.
func (d Destination) String() string {
	if d.Kind == DestinationUnixDatagram {
		return d.Path
	}
	return net.JoinHostPort(d.Host.String(), strconv.Itoa(d.Port))
}

// network returns the net.Dial network name for the destination kind.
func (d Destination) network() string {
	if d.Kind == DestinationUnixDatagram {
		return "unixgram"
	}
	return "udp4"
}

// address returns the net.Dial address for the destination.
func (d Destination) address() string {
	return d.String()
}

// ParseDestination validates and parses a destination string. A leading
// slash selects a unix datagram socket; anything else must be ipv4:port.
// Validation failures reject the whole enable call with no state change.
func ParseDestination(s string) (Destination, error) {
	if strings.HasPrefix(s, "/") {
		if len(s) > maxUnixPathLen {
			return Destination{}, fmt.Errorf("%w: %d bytes", core.ErrSocketPathTooLong, len(s))
		}
		return Destination{Kind: DestinationUnixDatagram, Path: s}, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %q", core.ErrInvalidDestination, s)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return Destination{}, fmt.Errorf("%w: %q is not an IPv4 address", core.ErrInvalidDestination, host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Destination{}, fmt.Errorf("%w: %q", core.ErrInvalidPort, portStr)
	}
	return Destination{Kind: DestinationUDP, Host: addr, Port: port}, nil
}

// Binding owns the outbound datagram socket. The socket handle itself is
// written only by the sender goroutine; Connected is the sole cross-thread
// surface, read by the tap fast path.
type Binding struct {
	dest      Destination
	conn      net.Conn
	connected atomic.Bool
}

// Connect dials the destination and returns a connected binding.
func Connect(dest Destination) (*Binding, error) {
	conn, err := net.Dial(dest.network(), dest.address())
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", dest.network(), dest.address(), err)
	}
	b := &Binding{dest: dest, conn: conn}
	b.connected.Store(true)
	return b, nil
}

// Destination returns the address the binding was dialed for.
func (b *Binding) Destination() Destination {
	return b.dest
}

// Connected reports whether the binding is still usable.
func (b *Binding) Connected() bool {
	return b.connected.Load()
}

// Send transmits one datagram. Any send error is fail-fast: the binding is
// marked disconnected and its socket closed, and further traffic is dropped
// until an explicit re-enable establishes a fresh binding. No retries; a
// broken link must never back-pressure the dataplane.
func (b *Binding) Send(p []byte) error {
	if !b.connected.Load() {
		return core.ErrNotConnected
	}
	if _, err := b.conn.Write(p); err != nil {
		log.GetLogger().WithError(err).
			WithField("destination", b.dest.String()).
			Error("send failed, disconnecting transport")
		b.connected.Store(false)
		b.conn.Close()
		return fmt.Errorf("send to %s: %w", b.dest.String(), err)
	}
	return nil
}

// Close tears the binding down. Idempotent.
func (b *Binding) Close() {
	if b.connected.Swap(false) {
		b.conn.Close()
	}
}
