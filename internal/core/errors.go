// Package core defines sentinel errors.
package core

import "errors"

var (
	// Control surface errors
	ErrInterfaceNotFound = errors.New("pcapbridge: interface not found")
	ErrInvalidDirection  = errors.New("pcapbridge: invalid direction (must be rx, tx or both)")

	// Destination validation errors
	ErrInvalidDestination = errors.New("pcapbridge: invalid destination (expected ipv4:port or absolute socket path)")
	ErrInvalidPort        = errors.New("pcapbridge: invalid port (must be 1-65535)")
	ErrSocketPathTooLong  = errors.New("pcapbridge: unix socket path exceeds 107 bytes")

	// Transport errors
	ErrNotConnected = errors.New("pcapbridge: transport not connected")

	// Wire protocol errors
	ErrTruncatedRecord = errors.New("pcapbridge: truncated record in datagram")
	ErrRecordTooLarge  = errors.New("pcapbridge: record exceeds maximum datagram size")

	// Receiver errors
	ErrSessionClosed = errors.New("pcapbridge: capture session closed")
)
