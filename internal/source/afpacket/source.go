// Package afpacket captures live traffic from a host interface through an
// AF_PACKET v3 ring buffer.
package afpacket

import (
	"context"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// Config parameterises the ring buffer.
type Config struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BPFFilter    string `mapstructure:"bpf_filter"`
}

// Source is an AF_PACKET capture handle.
type Source struct {
	handle *afpacket.TPacket

	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	fanoutID  uint16
	bpfFilter string
	snapLen   int
}

// NewSource sizes the ring for the configured memory budget. The socket is
// not opened until Start.
func NewSource(cfg Config) (*Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("afpacket: device is required")
	}
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65535
	}
	bufferMB := cfg.BufferSizeMB
	if bufferMB <= 0 {
		bufferMB = 8
	}
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 100
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(bufferMB, snapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	return &Source{
		device:    cfg.Device,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: timeoutMs,
		fanoutID:  cfg.FanoutID,
		bpfFilter: cfg.BPFFilter,
		snapLen:   snapLen,
	}, nil
}

// Start opens the AF_PACKET socket and attaches fanout and BPF filter.
func (s *Source) Start(_ context.Context) error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("afpacket open %s: %w", s.device, err)
	}

	if s.fanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, s.fanoutID); err != nil {
			tp.Close()
			return fmt.Errorf("afpacket fanout: %w", err)
		}
	}

	if s.bpfFilter != "" {
		pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, s.snapLen, s.bpfFilter)
		if err != nil {
			tp.Close()
			return fmt.Errorf("compile bpf %q: %w", s.bpfFilter, err)
		}
		rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
		for i, inst := range pcapBPF {
			rawBPF[i] = bpf.RawInstruction{
				Op: inst.Code,
				Jt: inst.Jt,
				Jf: inst.Jf,
				K:  inst.K,
			}
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return fmt.Errorf("afpacket set bpf: %w", err)
		}
	}

	s.handle = tp
	return nil
}

// ReadPacket returns the next packet from the ring.
func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	return s.handle.ReadPacketData()
}

// Stop closes the socket.
func (s *Source) Stop() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
