package command

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
)

func startServer(t *testing.T) (*UDSClient, *bridge.Bridge) {
	t.Helper()

	b := bridge.New(bridge.NewStaticSource([]core.InterfaceInfo{
		{InterfaceID: 1, Name: "eth0"},
	}), bridge.Config{})
	t.Cleanup(b.Shutdown)

	socket := filepath.Join(t.TempDir(), "ctl.sock")
	if len(socket) > 100 {
		t.Skipf("temp path too long for unix socket: %d bytes", len(socket))
	}

	srv := NewUDSServer(socket, NewCommandHandler(b))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := NewUDSClient(socket, 3*time.Second)
	require.Eventually(t, func() bool {
		return client.Ping(context.Background()) == nil
	}, 3*time.Second, 20*time.Millisecond)

	return client, b
}

func udpSink(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().String()
}

func TestEnableDisableOverUDS(t *testing.T) {
	client, b := startServer(t)
	ctx := context.Background()

	resp, err := client.Enable(ctx, "eth0", udpSink(t), "both")
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "enabled", result["status"])
	assert.True(t, b.Connected())

	resp, err = client.Disable(ctx, "eth0")
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.False(t, b.Connected())
}

func TestEnableUnknownInterfaceOverUDS(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Enable(context.Background(), "bogus0", udpSink(t), "both")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "not found")
}

func TestEnableMissingParams(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Call(context.Background(), "bridge_enable", EnableParams{})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestStatsOverUDS(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Stats(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, false, result["connected"])
}

func TestInterfacesOverUDS(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Interfaces(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, float64(1), result["count"])
}

func TestMethodNotFound(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Call(context.Background(), "bridge_reverse", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestDaemonStatus(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Status(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.NotEmpty(t, result["version"])
}

func TestShutdownWithoutHandler(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.Shutdown(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "not registered")
}
