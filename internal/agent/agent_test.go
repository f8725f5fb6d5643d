package agent

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/relay"
)

func newTestSetup(t *testing.T) (*Client, *bridge.Bridge, *net.UDPConn) {
	t.Helper()

	lis, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	b := bridge.New(bridge.NewStaticSource([]core.InterfaceInfo{
		{InterfaceID: 0, Name: "local0"},
		{InterfaceID: 1, Name: "GigabitEthernet0/8/0", Description: "uplink"},
	}), bridge.Config{})
	t.Cleanup(b.Shutdown)

	srv := httptest.NewServer(NewServer("", b).Handler())
	t.Cleanup(srv.Close)

	return NewClient(strings.TrimPrefix(srv.URL, "http://")), b, lis
}

func TestInterfaces(t *testing.T) {
	c, _, _ := newTestSetup(t)

	list, err := c.Interfaces(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "GigabitEthernet0/8/0", list[1].Name)
	assert.Equal(t, uint32(1), list[1].InterfaceID)
}

func TestEnableDisableRoundTrip(t *testing.T) {
	c, b, lis := newTestSetup(t)
	ctx := context.Background()

	id, err := c.Enable(ctx, "GigabitEthernet0/8/0", lis.LocalAddr().String(), "both")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.True(t, b.Connected())

	// Traffic flows to the address the enable named.
	b.Tap(1, core.DirectionRx, time.Now(), []byte("hello"))
	buf := make([]byte, relay.MaxDatagramSize)
	require.NoError(t, lis.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := lis.ReadFromUDP(buf)
	require.NoError(t, err)
	recs, err := relay.DecodeDatagram(buf[:n])
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("hello"), recs[0].Payload)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	require.Len(t, st.Stats, 1)
	assert.Equal(t, uint64(1), st.Stats[0].PacketsSentRx)

	require.NoError(t, c.Disable(ctx, "GigabitEthernet0/8/0"))
	assert.False(t, b.Connected())

	// Disable twice: still success.
	require.NoError(t, c.Disable(ctx, "GigabitEthernet0/8/0"))
}

func TestEnableUnknownInterface(t *testing.T) {
	c, _, lis := newTestSetup(t)

	_, err := c.Enable(context.Background(), "bogus0", lis.LocalAddr().String(), "both")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnableBadDestination(t *testing.T) {
	c, b, _ := newTestSetup(t)

	_, err := c.Enable(context.Background(), "local0", "127.0.0.1:99999", "both")
	require.Error(t, err)
	assert.False(t, b.Connected())
}

func TestEnableBadDirection(t *testing.T) {
	c, _, lis := newTestSetup(t)

	_, err := c.Enable(context.Background(), "local0", lis.LocalAddr().String(), "sideways")
	require.Error(t, err)
}

func TestDisableUnknownInterface(t *testing.T) {
	c, _, _ := newTestSetup(t)

	err := c.Disable(context.Background(), "bogus0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatsEmpty(t *testing.T) {
	c, _, _ := newTestSetup(t)

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Empty(t, st.Stats)
	assert.Zero(t, st.QueueOverflows)
}
