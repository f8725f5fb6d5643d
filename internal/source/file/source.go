// Package file replays a pcap file as a packet source, mainly for testing
// the relay without live traffic.
package file

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Source reads packets from a capture file.
type Source struct {
	path   string
	handle *pcap.Handle
}

// NewSource builds a file source for path.
func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("file source: path is required")
	}
	return &Source{path: path}, nil
}

// Start opens the capture file.
func (s *Source) Start(_ context.Context) error {
	handle, err := pcap.OpenOffline(s.path)
	if err != nil {
		return fmt.Errorf("open pcap file %s: %w", s.path, err)
	}
	s.handle = handle
	return nil
}

// ReadPacket returns the next packet; io.EOF ends the replay.
func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("file source not started")
	}
	data, ci, err := s.handle.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("read packet: %w", err)
	}
	return data, ci, nil
}

// LinkType reports the file's link layer.
func (s *Source) LinkType() layers.LinkType {
	if s.handle == nil {
		return layers.LinkTypeEthernet
	}
	return s.handle.LinkType()
}

// Stop closes the file.
func (s *Source) Stop() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
