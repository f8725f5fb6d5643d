package bridge

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/relay"
)

var testInterfaces = []core.InterfaceInfo{
	{InterfaceID: 1, Name: "eth0"},
	{InterfaceID: 2, Name: "eth1"},
}

func newTestBridge() *Bridge {
	return New(NewStaticSource(testInterfaces), Config{QueueCapacity: 100})
}

// udpListener is a local datagram sink that decodes everything it receives.
type udpListener struct {
	t    *testing.T
	conn *net.UDPConn
}

func newUDPListener(t *testing.T) *udpListener {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return &udpListener{t: t, conn: conn}
}

func (l *udpListener) addr() string {
	return l.conn.LocalAddr().String()
}

func (l *udpListener) destination() Destination {
	d, err := ParseDestination(l.addr())
	require.NoError(l.t, err)
	return d
}

func (l *udpListener) close() {
	l.conn.Close()
}

// readRecords blocks until n records arrived or the deadline passed.
func (l *udpListener) readRecords(n int) []relay.Record {
	var out []relay.Record
	buf := make([]byte, relay.MaxDatagramSize)
	deadline := time.Now().Add(3 * time.Second)
	for len(out) < n {
		require.NoError(l.t, l.conn.SetReadDeadline(deadline))
		sz, _, err := l.conn.ReadFromUDP(buf)
		require.NoError(l.t, err, "waiting for %d records, got %d", n, len(out))
		recs, err := relay.DecodeDatagram(buf[:sz])
		require.NoError(l.t, err)
		out = append(out, recs...)
	}
	return out
}

// expectSilence asserts that nothing arrives for a short window.
func (l *udpListener) expectSilence() {
	buf := make([]byte, relay.MaxDatagramSize)
	require.NoError(l.t, l.conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	sz, _, err := l.conn.ReadFromUDP(buf)
	if err == nil {
		recs, _ := relay.DecodeDatagram(buf[:sz])
		l.t.Fatalf("expected no traffic, got %d records", len(recs))
	}
}

func TestEnableUnknownInterface(t *testing.T) {
	b := newTestBridge()
	defer b.Shutdown()

	err := b.Enable(42, "127.0.0.1:9000", core.FilterBoth)
	assert.ErrorIs(t, err, core.ErrInterfaceNotFound)
	assert.False(t, b.Connected())

	_, err = b.EnableByName("bogus0", "127.0.0.1:9000", core.FilterBoth)
	assert.ErrorIs(t, err, core.ErrInterfaceNotFound)
}

func TestEnableInvalidDestination(t *testing.T) {
	b := newTestBridge()
	defer b.Shutdown()

	err := b.Enable(1, "127.0.0.1:99999", core.FilterBoth)
	assert.ErrorIs(t, err, core.ErrInvalidPort)

	// Rejected enables leave no trace: not connected, not enabled.
	assert.False(t, b.Connected())
	assert.False(t, b.reg.Enabled(1))
}

func TestRelayEndToEndUDP(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	require.True(t, b.Connected())

	ts := time.Unix(1700000000, 123456000)
	b.Tap(1, core.DirectionRx, ts, []byte("ingress"))
	b.Tap(1, core.DirectionTx, ts, []byte("egress!"))

	recs := lis.readRecords(2)
	require.Len(t, recs, 2)
	assert.Equal(t, uint32(1), recs[0].InterfaceID)
	assert.Equal(t, core.DirectionRx, recs[0].Direction)
	assert.Equal(t, uint32(1700000000), recs[0].TsSec)
	assert.Equal(t, uint32(123456), recs[0].TsUsec)
	assert.Equal(t, []byte("ingress"), recs[0].Payload)
	assert.Equal(t, core.DirectionTx, recs[1].Direction)
	assert.Equal(t, []byte("egress!"), recs[1].Payload)

	st, err := b.Stats(1)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, "eth0", st.Name)
	assert.Equal(t, uint64(1), st.PacketsSentRx)
	assert.Equal(t, uint64(7), st.BytesSentRx)
	assert.Equal(t, uint64(1), st.PacketsSentTx)
	assert.Equal(t, uint64(7), st.BytesSentTx)
	assert.Equal(t, uint64(0), b.QueueOverflows())
}

func TestRelayEndToEndUnixgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.sock")
	if len(path) > maxUnixPathLen {
		t.Skipf("temp path too long for unix datagram socket: %d bytes", len(path))
	}
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	defer conn.Close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(2, path, core.FilterBoth))
	b.Tap(2, core.DirectionRx, time.Now(), []byte{0xde, 0xad})

	buf := make([]byte, relay.MaxDatagramSize)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	sz, err := conn.Read(buf)
	require.NoError(t, err)

	recs, err := relay.DecodeDatagram(buf[:sz])
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(2), recs[0].InterfaceID)
	assert.Equal(t, []byte{0xde, 0xad}, recs[0].Payload)
}

func TestDirectionFilter(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterRxOnly))
	b.Tap(1, core.DirectionTx, time.Now(), []byte("filtered"))
	b.Tap(1, core.DirectionRx, time.Now(), []byte("kept"))

	recs := lis.readRecords(1)
	require.Len(t, recs, 1)
	assert.Equal(t, core.DirectionRx, recs[0].Direction)
	assert.Equal(t, []byte("kept"), recs[0].Payload)
	lis.expectSilence()

	// Filtered packets never count as sent.
	st, err := b.Stats(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.PacketsSentTx)
}

func TestTapDisabledInterfaceDropped(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	b.Tap(2, core.DirectionRx, time.Now(), []byte("stranger"))
	lis.expectSilence()
}

func TestBindingSharedAcrossInterfaces(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	// Second enable names another (valid) destination; the live binding
	// wins and the new destination is ignored.
	require.NoError(t, b.Enable(2, "127.0.0.1:1", core.FilterBoth))
	assert.Equal(t, lis.addr(), b.Destination())

	b.Tap(1, core.DirectionRx, time.Now(), []byte("a"))
	b.Tap(2, core.DirectionRx, time.Now(), []byte("b"))

	recs := lis.readRecords(2)
	ids := []uint32{recs[0].InterfaceID, recs[1].InterfaceID}
	assert.ElementsMatch(t, []uint32{1, 2}, ids)
}

func TestDisableIdempotentAndTeardown(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	require.NoError(t, b.Enable(2, lis.addr(), core.FilterBoth))

	require.NoError(t, b.Disable(1))
	assert.True(t, b.Connected(), "binding stays up while eth1 captures")

	require.NoError(t, b.Disable(1))  // repeat: no-op
	require.NoError(t, b.Disable(77)) // unknown: no-op

	require.NoError(t, b.Disable(2))
	assert.False(t, b.Connected(), "last disable closes the transport")

	// Tap after teardown is silently dropped.
	b.Tap(1, core.DirectionRx, time.Now(), []byte("late"))
	lis.expectSilence()

	// Counters survive disable.
	st, err := b.Stats(1)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
}

func TestReEnableAfterTeardown(t *testing.T) {
	lis := newUDPListener(t)
	defer lis.close()

	b := newTestBridge()
	defer b.Shutdown()

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	require.NoError(t, b.Disable(1))
	require.False(t, b.Connected())

	require.NoError(t, b.Enable(1, lis.addr(), core.FilterBoth))
	require.True(t, b.Connected())
	b.Tap(1, core.DirectionRx, time.Now(), []byte("back"))
	recs := lis.readRecords(1)
	assert.Equal(t, []byte("back"), recs[0].Payload)
}

func TestSendFailureDisconnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.sock")
	if len(path) > maxUnixPathLen {
		t.Skipf("temp path too long for unix datagram socket: %d bytes", len(path))
	}
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)

	dest, err := ParseDestination(path)
	require.NoError(t, err)
	binding, err := Connect(dest)
	require.NoError(t, err)
	defer binding.Close()

	require.NoError(t, binding.Send([]byte{1}))

	// Receiver goes away: next send fails and the binding latches
	// disconnected instead of retrying.
	conn.Close()
	require.NoError(t, os.Remove(path))

	err = binding.Send([]byte{2})
	require.Error(t, err)
	assert.False(t, binding.Connected())
	assert.ErrorIs(t, binding.Send([]byte{3}), core.ErrNotConnected)
}

func TestStatsUnknownInterface(t *testing.T) {
	b := newTestBridge()
	_, err := b.Stats(5)
	assert.ErrorIs(t, err, core.ErrInterfaceNotFound)
	assert.Empty(t, b.AllStats())
}

func TestListInterfaces(t *testing.T) {
	b := newTestBridge()
	list, err := b.ListInterfaces()
	require.NoError(t, err)
	assert.Equal(t, testInterfaces, list)
}
