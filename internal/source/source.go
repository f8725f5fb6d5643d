// Package source feeds the bridge from real packet sources: an AF_PACKET
// ring on a host interface, or a pcap file replayed for testing. Sources
// are optional; a dataplane embedding the bridge calls Tap directly.
package source

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/gopacket"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
)

// PacketSource yields raw packets with capture metadata.
type PacketSource interface {
	Start(ctx context.Context) error
	ReadPacket() (data []byte, info gopacket.CaptureInfo, err error)
	Stop() error
}

// Pump drains one PacketSource into the bridge tap for one interface id.
// Packets observed on a mirror port carry no direction information, so
// everything is tapped as rx.
type Pump struct {
	bridge  *bridge.Bridge
	source  PacketSource
	ifaceID uint32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPump wires src to interface id on b.
func NewPump(b *bridge.Bridge, src PacketSource, ifaceID uint32) *Pump {
	return &Pump{bridge: b, source: src, ifaceID: ifaceID}
}

// Start opens the source and begins pumping in the background.
func (p *Pump) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	if err := p.source.Start(ctx); err != nil {
		p.cancel()
		return err
	}

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

func (p *Pump) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		data, ci, err := p.source.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			// Poll timeouts and transient ring errors: keep reading.
			log.GetLogger().WithError(err).
				WithField("interface_id", p.ifaceID).
				Debug("packet source read")
			continue
		}
		p.bridge.Tap(p.ifaceID, core.DirectionRx, ci.Timestamp, data)
	}
}

// Stop closes the source and joins the pump goroutine.
func (p *Pump) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.source.Stop()
	p.wg.Wait()
}
