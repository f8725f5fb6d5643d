// Package core defines core data structures with zero external dependencies.
package core

import "time"

// Direction tags a captured packet with the side of the forwarding path it
// was taken from.
type Direction uint8

const (
	// DirectionRx marks packets received by the dataplane (ingress tap).
	DirectionRx Direction = 0
	// DirectionTx marks packets transmitted by the dataplane (egress tap).
	DirectionTx Direction = 1
)

// String returns the conventional short name used in logs and stats output.
func (d Direction) String() string {
	if d == DirectionTx {
		return "tx"
	}
	return "rx"
}

// DirectionFilter selects which tap points feed the capture queue for an
// enabled interface. Evaluated at the tap, before any queueing work.
type DirectionFilter uint8

const (
	FilterBoth DirectionFilter = iota
	FilterRxOnly
	FilterTxOnly
)

// String returns the control-surface spelling of the filter.
func (f DirectionFilter) String() string {
	switch f {
	case FilterRxOnly:
		return "rx"
	case FilterTxOnly:
		return "tx"
	default:
		return "both"
	}
}

// Match reports whether packets of direction d pass the filter.
func (f DirectionFilter) Match(d Direction) bool {
	switch f {
	case FilterRxOnly:
		return d == DirectionRx
	case FilterTxOnly:
		return d == DirectionTx
	default:
		return true
	}
}

// ParseDirectionFilter parses the control-surface direction argument.
func ParseDirectionFilter(s string) (DirectionFilter, error) {
	switch s {
	case "rx":
		return FilterRxOnly, nil
	case "tx":
		return FilterTxOnly, nil
	case "both", "":
		return FilterBoth, nil
	default:
		return FilterBoth, ErrInvalidDirection
	}
}

// CapturedPacket is one packet copied out of the forwarding path at a tap
// point. Ownership of Payload transfers from the producer to the queue and
// then to the sender; it is released after transmission.
type CapturedPacket struct {
	InterfaceID uint32
	Direction   Direction
	TsSec       uint32
	TsUsec      uint32
	Payload     []byte
}

// SplitTimestamp converts a wall-clock time into the seconds/microseconds
// pair carried in the wire record header.
func SplitTimestamp(t time.Time) (sec, usec uint32) {
	return uint32(t.Unix()), uint32(t.Nanosecond() / 1_000)
}

// InterfaceInfo describes one dataplane interface eligible for capture.
type InterfaceInfo struct {
	InterfaceID uint32 `json:"sw_if_index"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InterfaceStats is the per-interface counter snapshot returned by the
// control surface. Counters accumulate from first enable and survive
// disable; they only reset with the process.
type InterfaceStats struct {
	InterfaceID   uint32 `json:"sw_if_index"`
	Name          string `json:"name,omitempty"`
	Enabled       bool   `json:"enabled"`
	PacketsSentRx uint64 `json:"packets_sent_rx"`
	BytesSentRx   uint64 `json:"bytes_sent_rx"`
	PacketsSentTx uint64 `json:"packets_sent_tx"`
	BytesSentTx   uint64 `json:"bytes_sent_tx"`
}
