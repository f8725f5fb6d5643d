package receiver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/metrics"
	"icc.tech/pcap-bridge/internal/relay"
)

// Receiver owns the datagram socket the dataplane agent sends to. Each
// datagram is decoded into records and fanned out to every attached
// session. Datagrams carry no ordering or delivery guarantees; whatever
// arrives intact is delivered, a corrupt tail voids only the bytes after
// the last complete record.
type Receiver struct {
	conn     net.PacketConn
	unixPath string

	mu       sync.RWMutex
	sessions map[*Session]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// ListenUDP opens a UDP receiver on addr. Use "127.0.0.1:0" to let the
// kernel pick a free port, then read it back with LocalAddr.
func ListenUDP(addr string) (*Receiver, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return newReceiver(conn, ""), nil
}

// ListenUnixgram opens a unix datagram receiver bound to path. The socket
// file is removed again on Close.
func ListenUnixgram(path string) (*Receiver, error) {
	conn, err := net.ListenPacket("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("listen unixgram %s: %w", path, err)
	}
	return newReceiver(conn, path), nil
}

func newReceiver(conn net.PacketConn, unixPath string) *Receiver {
	r := &Receiver{
		conn:     conn,
		unixPath: unixPath,
		sessions: make(map[*Session]struct{}),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

// LocalAddr returns the bound address, port included.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Attach subscribes a session to the record stream.
func (r *Receiver) Attach(s *Session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

// Detach unsubscribes a session. The session itself is not closed.
func (r *Receiver) Detach(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

func (r *Receiver) loop() {
	buf := make([]byte, relay.MaxDatagramSize)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.done:
			default:
				log.GetLogger().WithError(err).Error("receiver socket read failed")
			}
			return
		}

		records, err := relay.DecodeDatagram(buf[:n])
		if err != nil {
			metrics.ReceiverDecodeErrors.Inc()
			log.GetLogger().WithError(err).
				WithField("bytes", n).
				Warn("discarding corrupt datagram tail")
		}
		if len(records) == 0 {
			continue
		}
		metrics.ReceiverDatagrams.Inc()
		r.dispatch(records)
	}
}

func (r *Receiver) dispatch(records []relay.Record) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var dead []*Session
	for _, s := range sessions {
		alive := true
		for i := range records {
			if !s.deliver(&records[i]) {
				alive = false
				break
			}
		}
		if !alive {
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		r.Detach(s)
	}
}

// Close stops the read loop and releases the socket.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.conn.Close()
		if r.unixPath != "" {
			if rmErr := os.Remove(r.unixPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.GetLogger().WithError(rmErr).Warn("removing receiver socket file")
			}
		}
	})
	return err
}
