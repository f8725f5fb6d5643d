package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/metrics"
)

// Config carries the tunables of the relay pipeline.
type Config struct {
	// QueueCapacity bounds the capture queue. Zero means the default.
	QueueCapacity int `mapstructure:"queue-capacity"`
}

// Bridge is the dataplane-side relay. Taps feed it packets, the control
// surface enables and disables interfaces, and a single sender goroutine
// ships batches to the one active destination.
//
// All enabled interfaces share one transport binding: the first enable
// establishes it and later enables reuse it, regardless of the destination
// they name. The binding is torn down when the last interface is disabled
// or when a send fails.
type Bridge struct {
	queue *captureQueue
	reg   *interfaceRegistry

	source InterfaceSource

	mu      sync.Mutex // guards binding/sender lifecycle
	binding atomic.Pointer[Binding]
	sender  *sender
}

// New builds a bridge over the given interface source.
func New(source InterfaceSource, cfg Config) *Bridge {
	return &Bridge{
		queue:  newCaptureQueue(cfg.QueueCapacity),
		reg:    newInterfaceRegistry(),
		source: source,
	}
}

// Lookup resolves an interface by name against the source.
func (b *Bridge) Lookup(name string) (core.InterfaceInfo, error) {
	list, err := b.source.Interfaces()
	if err != nil {
		return core.InterfaceInfo{}, err
	}
	for _, info := range list {
		if info.Name == name {
			return info, nil
		}
	}
	return core.InterfaceInfo{}, fmt.Errorf("%w: %q", core.ErrInterfaceNotFound, name)
}

// lookupByID resolves an interface id against the source.
func (b *Bridge) lookupByID(id uint32) (core.InterfaceInfo, error) {
	list, err := b.source.Interfaces()
	if err != nil {
		return core.InterfaceInfo{}, err
	}
	for _, info := range list {
		if info.InterfaceID == id {
			return info, nil
		}
	}
	return core.InterfaceInfo{}, fmt.Errorf("%w: id %d", core.ErrInterfaceNotFound, id)
}

// Enable starts capture on an interface towards destination. The first
// enable dials the destination and starts the sender; while a binding is
// live, later enables join it and their destination argument is ignored
// apart from validation. Validation failure leaves all state untouched.
func (b *Bridge) Enable(id uint32, destination string, filter core.DirectionFilter) error {
	info, err := b.lookupByID(id)
	if err != nil {
		return err
	}
	dest, err := ParseDestination(destination)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.binding.Load()
	if cur == nil || !cur.Connected() {
		if b.sender != nil {
			// The old sender is parked on a dead binding.
			b.stopTransportLocked()
		}
		binding, err := Connect(dest)
		if err != nil {
			return err
		}
		b.binding.Store(binding)
		b.sender = newSender(b.queue, b.reg, binding)
		log.GetLogger().WithField("destination", dest.String()).
			Info("transport connected")
	} else if active := cur.Destination().String(); active != dest.String() {
		log.GetLogger().WithField("destination", destination).
			WithField("active", active).
			Warn("destination differs from active binding, reusing active")
	}

	b.reg.Enable(id, info.Name, filter)
	log.GetLogger().WithField("interface", info.Name).
		WithField("interface_id", id).
		WithField("filter", filter.String()).
		Info("capture enabled")
	return nil
}

// EnableByName is Enable with a name lookup, for the REST and CLI fronts.
func (b *Bridge) EnableByName(name, destination string, filter core.DirectionFilter) (uint32, error) {
	info, err := b.Lookup(name)
	if err != nil {
		return 0, err
	}
	return info.InterfaceID, b.Enable(info.InterfaceID, destination, filter)
}

// Disable stops capture on an interface. Disabling an interface that is
// unknown or already disabled succeeds without effect. When the last
// enabled interface goes away the sender is joined and the socket closed.
func (b *Bridge) Disable(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reg.Disable(id)
	if !b.reg.AnyEnabled() && b.sender != nil {
		b.stopTransportLocked()
		log.GetLogger().Info("last capture disabled, transport closed")
	}
	log.GetLogger().WithField("interface_id", id).Info("capture disabled")
	return nil
}

// DisableByName is Disable with a name lookup.
func (b *Bridge) DisableByName(name string) (uint32, error) {
	info, err := b.Lookup(name)
	if err != nil {
		return 0, err
	}
	return info.InterfaceID, b.Disable(info.InterfaceID)
}

func (b *Bridge) stopTransportLocked() {
	b.sender.Stop()
	if cur := b.binding.Load(); cur != nil {
		cur.Close()
	}
	b.binding.Store(nil)
	b.sender = nil
}

// Tap is the dataplane entry point for one captured packet. It never
// blocks: when the interface is not capturing, the direction is filtered
// out, the transport is down or the queue is full, the packet is dropped.
// The payload is copied, so the caller keeps ownership of data.
func (b *Bridge) Tap(id uint32, dir core.Direction, ts time.Time, data []byte) {
	if !b.reg.Accepts(id, dir) {
		return
	}
	binding := b.binding.Load()
	if binding == nil || !binding.Connected() {
		return
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	sec, usec := core.SplitTimestamp(ts)
	accepted := b.queue.Enqueue(&core.CapturedPacket{
		InterfaceID: id,
		Direction:   dir,
		TsSec:       sec,
		TsUsec:      usec,
		Payload:     payload,
	})
	if !accepted {
		metrics.QueueDrops.Inc()
	}
}

// Connected reports whether a transport binding is live.
func (b *Bridge) Connected() bool {
	binding := b.binding.Load()
	return binding != nil && binding.Connected()
}

// Destination returns the active destination, or "" when disconnected.
func (b *Bridge) Destination() string {
	binding := b.binding.Load()
	if binding == nil {
		return ""
	}
	return binding.Destination().String()
}

// Stats returns the relay counters for one interface.
func (b *Bridge) Stats(id uint32) (core.InterfaceStats, error) {
	st, ok := b.reg.Stats(id)
	if !ok {
		return core.InterfaceStats{}, fmt.Errorf("%w: id %d", core.ErrInterfaceNotFound, id)
	}
	return st, nil
}

// AllStats returns the relay counters of every interface ever enabled.
func (b *Bridge) AllStats() []core.InterfaceStats {
	return b.reg.AllStats()
}

// QueueOverflows reports packets dropped at enqueue because the queue was
// full.
func (b *Bridge) QueueOverflows() uint64 {
	return b.queue.Overflows()
}

// ListInterfaces enumerates the capturable interfaces.
func (b *Bridge) ListInterfaces() ([]core.InterfaceInfo, error) {
	return b.source.Interfaces()
}

// Shutdown disables everything and tears the transport down.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sender != nil {
		b.stopTransportLocked()
	}
}
