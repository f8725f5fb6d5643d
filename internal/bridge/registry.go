package bridge

import (
	"sync"

	"icc.tech/pcap-bridge/internal/core"
)

// interfaceEntry tracks capture state and relay counters for one interface.
// Entries are created on first enable and persist across disable so the
// counters survive for later stats queries.
type interfaceEntry struct {
	id      uint32
	name    string
	enabled bool
	filter  core.DirectionFilter

	packetsSentRx uint64
	bytesSentRx   uint64
	packetsSentTx uint64
	bytesSentTx   uint64
}

// interfaceRegistry is the shared enable/filter/counter table. The tap fast
// path takes the read lock only.
type interfaceRegistry struct {
	mu      sync.RWMutex
	entries map[uint32]*interfaceEntry
}

func newInterfaceRegistry() *interfaceRegistry {
	return &interfaceRegistry{entries: make(map[uint32]*interfaceEntry)}
}

// Enable marks the interface as capturing with the given direction filter.
// Re-enabling an enabled interface just replaces the filter.
func (r *interfaceRegistry) Enable(id uint32, name string, filter core.DirectionFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		e = &interfaceEntry{id: id, name: name}
		r.entries[id] = e
	}
	e.name = name
	e.enabled = true
	e.filter = filter
}

// Disable clears the enabled flag. Unknown or already-disabled interfaces
// are a no-op; disable is always idempotent.
func (r *interfaceRegistry) Disable(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.enabled = false
	}
}

// Accepts reports whether a packet with the given interface and direction
// should enter the queue.
func (r *interfaceRegistry) Accepts(id uint32, dir core.Direction) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.enabled && e.filter.Match(dir)
}

// Enabled reports whether the interface is currently capturing.
func (r *interfaceRegistry) Enabled(id uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.enabled
}

// AnyEnabled reports whether at least one interface is capturing.
func (r *interfaceRegistry) AnyEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.enabled {
			return true
		}
	}
	return false
}

// AddSent accumulates relay counters for one framed packet.
func (r *interfaceRegistry) AddSent(id uint32, dir core.Direction, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if dir == core.DirectionTx {
		e.packetsSentTx++
		e.bytesSentTx += uint64(bytes)
	} else {
		e.packetsSentRx++
		e.bytesSentRx += uint64(bytes)
	}
}

// Stats snapshots the counters for one interface. The second return value
// is false when the interface was never enabled.
func (r *interfaceRegistry) Stats(id uint32) (core.InterfaceStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return core.InterfaceStats{}, false
	}
	return statsOf(e), true
}

// AllStats snapshots the counters of every interface ever enabled.
func (r *interfaceRegistry) AllStats() []core.InterfaceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.InterfaceStats, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, statsOf(e))
	}
	return out
}

func statsOf(e *interfaceEntry) core.InterfaceStats {
	return core.InterfaceStats{
		InterfaceID:   e.id,
		Name:          e.name,
		Enabled:       e.enabled,
		PacketsSentRx: e.packetsSentRx,
		BytesSentRx:   e.bytesSentRx,
		PacketsSentTx: e.packetsSentTx,
		BytesSentTx:   e.bytesSentTx,
	}
}
