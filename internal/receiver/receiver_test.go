package receiver

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/relay"
)

func readPcap(t *testing.T, data []byte) (*pcapgo.Reader, [][]byte) {
	t.Helper()
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var packets [][]byte
	for {
		pkt, _, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		packets = append(packets, pkt)
	}
	return r, packets
}

func TestEmitterStream(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	recs := []relay.Record{
		{InterfaceID: 1, TsSec: 1700000000, TsUsec: 250000, Payload: []byte("first")},
		{InterfaceID: 1, TsSec: 1700000001, TsUsec: 0, Direction: core.DirectionTx, Payload: []byte("second packet")},
	}
	for i := range recs {
		require.NoError(t, e.Emit(&recs[i]))
	}

	r, packets := readPcap(t, buf.Bytes())
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
	require.Len(t, packets, 2)
	assert.Equal(t, []byte("first"), packets[0])
	assert.Equal(t, []byte("second packet"), packets[1])
}

func TestEmitterTimestamps(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	rec := relay.Record{TsSec: 1700000000, TsUsec: 123456, Payload: []byte{1}}
	require.NoError(t, e.Emit(&rec))

	r, err := pcapgo.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 123456000).UTC(), ci.Timestamp.UTC())
}

func TestEmitterTruncatesToSnapLen(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	rec := relay.Record{Payload: make([]byte, SnapLen+100)}
	require.NoError(t, e.Emit(&rec))

	r, err := pcapgo.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	pkt, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Len(t, pkt, SnapLen)
	assert.Equal(t, SnapLen+100, ci.Length)
}

func TestEmitterHeaderOnlyStream(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	require.NoError(t, e.WriteHeader())
	require.NoError(t, e.WriteHeader())

	_, packets := readPcap(t, buf.Bytes())
	assert.Empty(t, packets)
}

func TestSessionFiltersByInterface(t *testing.T) {
	var buf bytes.Buffer
	s := NewSession(7, NewEmitter(&buf))
	require.NoError(t, s.Start())

	assert.True(t, s.deliver(&relay.Record{InterfaceID: 3, Payload: []byte("other")}))
	assert.True(t, s.deliver(&relay.Record{InterfaceID: 7, Payload: []byte("mine")}))
	assert.Equal(t, uint64(1), s.Packets())

	_, packets := readPcap(t, buf.Bytes())
	require.Len(t, packets, 1)
	assert.Equal(t, []byte("mine"), packets[0])
}

// limitWriter accepts n bytes and then fails, standing in for an analyzer
// that closed its end of the fifo.
type limitWriter struct {
	n int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.n < len(p) {
		return 0, errors.New("broken pipe")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestSessionWriteErrorLatchesClosed(t *testing.T) {
	// Room for the 24-byte pcap header, nothing else.
	s := NewSession(1, NewEmitter(&limitWriter{n: 24}))
	require.NoError(t, s.Start())

	assert.False(t, s.deliver(&relay.Record{InterfaceID: 1, Payload: []byte("x")}))
	assert.Error(t, s.Err())
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed")
	}

	// Latched: later deliveries are refused without touching the writer.
	assert.False(t, s.deliver(&relay.Record{InterfaceID: 1, Payload: []byte("y")}))
	assert.Equal(t, uint64(0), s.Packets())
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := NewSession(1, NewEmitter(&bytes.Buffer{}))
	s.Close()
	s.Close()
	assert.NoError(t, s.Err())
	assert.ErrorIs(t, s.Start(), core.ErrSessionClosed)
}

func sendDatagram(t *testing.T, addr net.Addr, recs ...relay.Record) {
	t.Helper()
	conn, err := net.Dial("udp4", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	var buf []byte
	for i := range recs {
		buf = relay.AppendRecord(buf, &recs[i])
	}
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func TestReceiverFanOut(t *testing.T) {
	r, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Close()

	var bufA, bufB bytes.Buffer
	sessA := NewSession(1, NewEmitter(&bufA))
	sessB := NewSession(2, NewEmitter(&bufB))
	r.Attach(sessA)
	r.Attach(sessB)

	sendDatagram(t, r.LocalAddr(),
		relay.Record{InterfaceID: 1, Payload: []byte("for-a")},
		relay.Record{InterfaceID: 2, Payload: []byte("for-b")},
		relay.Record{InterfaceID: 3, Payload: []byte("for-nobody")},
	)

	require.Eventually(t, func() bool {
		return sessA.Packets() == 1 && sessB.Packets() == 1
	}, 3*time.Second, 10*time.Millisecond)

	sessA.Close()
	sessB.Close()

	_, packetsA := readPcap(t, bufA.Bytes())
	require.Len(t, packetsA, 1)
	assert.Equal(t, []byte("for-a"), packetsA[0])
	_, packetsB := readPcap(t, bufB.Bytes())
	require.Len(t, packetsB, 1)
	assert.Equal(t, []byte("for-b"), packetsB[0])
}

func TestReceiverSurvivesCorruptTail(t *testing.T) {
	r, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	sess := NewSession(5, NewEmitter(&buf))
	r.Attach(sess)

	// One good record followed by garbage shorter than a header.
	data := relay.AppendRecord(nil, &relay.Record{InterfaceID: 5, Payload: []byte("good")})
	data = append(data, 0xff, 0xee)
	conn, err := net.Dial("udp4", r.LocalAddr().String())
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool { return sess.Packets() == 1 }, 3*time.Second, 10*time.Millisecond)

	// The socket is still serving after the bad datagram.
	sendDatagram(t, r.LocalAddr(), relay.Record{InterfaceID: 5, Payload: []byte("more")})
	require.Eventually(t, func() bool { return sess.Packets() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestReceiverDetachesDeadSession(t *testing.T) {
	r, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer r.Close()

	sess := NewSession(1, NewEmitter(&limitWriter{n: 24}))
	require.NoError(t, sess.Start())
	r.Attach(sess)

	sendDatagram(t, r.LocalAddr(), relay.Record{InterfaceID: 1, Payload: []byte("x")})

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end on write failure")
	}

	r.mu.RLock()
	_, attached := r.sessions[sess]
	r.mu.RUnlock()
	assert.False(t, attached)
}
