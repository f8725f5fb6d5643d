package receiver

import (
	"sync"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/relay"
)

// Session is one attached analyzer. It selects a single interface id out of
// the shared datagram stream and renders its packets as a pcap stream. The
// first write error (analyzer closed its end) latches the session closed;
// the receiver drops it on the next delivery.
type Session struct {
	ifaceID uint32
	emitter *Emitter

	mu     sync.Mutex
	closed bool
	err    error
	done   chan struct{}

	packets uint64
}

// NewSession builds a session delivering packets of ifaceID to emitter.
func NewSession(ifaceID uint32, emitter *Emitter) *Session {
	return &Session{
		ifaceID: ifaceID,
		emitter: emitter,
		done:    make(chan struct{}),
	}
}

// InterfaceID returns the interface this session captures.
func (s *Session) InterfaceID() uint32 {
	return s.ifaceID
}

// Start writes the pcap file header immediately. Analyzers reading a fifo
// block until the header arrives, so it must not wait for traffic.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionClosed
	}
	if err := s.emitter.WriteHeader(); err != nil {
		s.failLocked(err)
		return err
	}
	return nil
}

// deliver hands one record to the session. Records for other interfaces are
// ignored. Returns false once the session is closed so the receiver can
// detach it.
func (s *Session) deliver(rec *relay.Record) bool {
	if rec.InterfaceID != s.ifaceID {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if err := s.emitter.Emit(rec); err != nil {
		log.GetLogger().WithError(err).
			WithField("interface_id", s.ifaceID).
			Info("capture session output closed")
		s.failLocked(err)
		return false
	}
	s.packets++
	return true
}

func (s *Session) failLocked(err error) {
	s.closed = true
	s.err = err
	close(s.done)
}

// Close ends the session. Idempotent; delivery stops immediately.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// Done is closed when the session ends, by Close or by a write failure.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the write error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Packets returns how many packets the session has emitted.
func (s *Session) Packets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}
