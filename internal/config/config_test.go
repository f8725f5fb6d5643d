package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "pcap-bridge:\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Agent.Listen)
	assert.Equal(t, "/var/run/pcap-bridge.sock", cfg.Control.Socket)
	assert.Equal(t, 10000, cfg.Bridge.QueueCapacity)
	assert.Equal(t, "host", cfg.Capture.Source)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadStaticInterfaces(t *testing.T) {
	path := writeConfig(t, `
pcap-bridge:
  agent:
    listen: "0.0.0.0:9099"
  bridge:
    queue-capacity: 500
  capture:
    source: static
  interfaces:
    - id: 1
      name: GigabitEthernet0/8/0
      description: uplink
    - id: 2
      name: tap0
  log:
    level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9099", cfg.Agent.Listen)
	assert.Equal(t, 500, cfg.Bridge.QueueCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Interfaces, 2)
	assert.Equal(t, uint32(1), cfg.Interfaces[0].ID)
	assert.Equal(t, "GigabitEthernet0/8/0", cfg.Interfaces[0].Name)

	src := cfg.InterfaceSource()
	list, err := src.Interfaces()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "uplink", list[0].Description)
}

func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, "pcap-bridge:\n  log:\n    level: loud\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadRejectsStaticWithoutInterfaces(t *testing.T) {
	path := writeConfig(t, "pcap-bridge:\n  capture:\n    source: static\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interfaces")
}

func TestLoadRejectsDuplicateInterfaceID(t *testing.T) {
	path := writeConfig(t, `
pcap-bridge:
  capture:
    source: static
  interfaces:
    - id: 3
      name: a
    - id: 3
      name: b
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate interface id")
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	path := writeConfig(t, "pcap-bridge:\n  capture:\n    source: satellite\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid capture.source")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "host", cfg.Capture.Source)
	assert.Equal(t, 10000, cfg.Bridge.QueueCapacity)
}
