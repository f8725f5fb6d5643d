package bridge

import (
	"errors"
	"time"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/metrics"
	"icc.tech/pcap-bridge/internal/relay"
)

// batchInterval is the longest a queued packet waits before the sender
// drains the queue even without a wakeup signal.
const batchInterval = time.Second

// sender is the single consumer of the capture queue. It swaps the backlog
// out, frames the batch into datagrams and writes them to the binding. One
// sender exists per live binding; it is created on first enable and joined
// on teardown.
type sender struct {
	queue   *captureQueue
	reg     *interfaceRegistry
	binding *Binding
	stop    chan struct{}
	done    chan struct{}
}

func newSender(q *captureQueue, reg *interfaceRegistry, binding *Binding) *sender {
	s := &sender{
		queue:   q,
		reg:     reg,
		binding: binding,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *sender) run() {
	defer close(s.done)

	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	builder := relay.NewFrameBuilder(func(d []byte) error {
		if err := s.binding.Send(d); err != nil {
			metrics.SendErrors.Inc()
			return err
		}
		metrics.DatagramsSent.Inc()
		return nil
	})

	for {
		select {
		case <-s.stop:
			// One final drain so packets queued just before teardown
			// still make it out.
			s.drain(builder)
			return
		case <-s.queue.Signal():
		case <-ticker.C:
		}
		s.drain(builder)
	}
}

// drain swaps the backlog out and relays it. A disconnected binding voids
// the batch without framing; packets between disconnect and re-enable are
// lost by contract.
func (s *sender) drain(builder *relay.FrameBuilder) {
	batch := s.queue.Swap()
	if len(batch) == 0 {
		return
	}
	if !s.binding.Connected() {
		return
	}

	for _, pkt := range batch {
		// The enable state is re-checked at send time: packets queued
		// before a disable are discarded, not relayed late.
		if !s.reg.Accepts(pkt.InterfaceID, pkt.Direction) {
			continue
		}
		rec := relay.Record{
			InterfaceID: pkt.InterfaceID,
			TsSec:       pkt.TsSec,
			TsUsec:      pkt.TsUsec,
			Direction:   pkt.Direction,
			Payload:     pkt.Payload,
		}
		if err := builder.Add(&rec); err != nil {
			if errors.Is(err, core.ErrRecordTooLarge) {
				metrics.OversizedDrops.Inc()
				log.GetLogger().WithField("interface_id", pkt.InterfaceID).
					WithField("bytes", len(pkt.Payload)).
					Warn("packet exceeds datagram size, dropped")
				continue
			}
			return
		}
		s.reg.AddSent(pkt.InterfaceID, pkt.Direction, len(pkt.Payload))
		metrics.PacketsRelayed.WithLabelValues(pkt.Direction.String()).Inc()
		metrics.BytesRelayed.WithLabelValues(pkt.Direction.String()).Add(float64(len(pkt.Payload)))
	}
	if err := builder.Flush(); err != nil {
		return
	}
}

// Stop signals the loop and waits for it to exit.
func (s *sender) Stop() {
	close(s.stop)
	<-s.done
}
