// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
)

// GlobalConfig represents the top-level static configuration. Maps to the
// `pcap-bridge:` root key in YAML.
type GlobalConfig struct {
	Agent      AgentConfig     `mapstructure:"agent"`
	Control    ControlConfig   `mapstructure:"control"`
	Bridge     bridge.Config   `mapstructure:"bridge"`
	Interfaces []IfaceConfig   `mapstructure:"interfaces"`
	Capture    CaptureConfig   `mapstructure:"capture"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Log        log.Config      `mapstructure:"log"`
}

// AgentConfig configures the REST control endpoint the analyzer side talks
// to.
type AgentConfig struct {
	Listen string `mapstructure:"listen"`
}

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// IfaceConfig declares one capturable interface when the agent fronts a
// static dataplane inventory instead of the host interface list.
type IfaceConfig struct {
	ID          uint32 `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// CaptureConfig selects where captured packets come from.
type CaptureConfig struct {
	// Source is "host" (enumerate host interfaces) or "static" (serve the
	// interfaces: list).
	Source string `mapstructure:"source"`

	// Live mirrors host interface traffic into the relay through
	// AF_PACKET rings. With Live off the agent only relays packets handed
	// to it in-process.
	Live         bool   `mapstructure:"live"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	BPFFilter    string `mapstructure:"bpf_filter"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `pcap-bridge: ...`.
type configRoot struct {
	PcapBridge GlobalConfig `mapstructure:"pcap-bridge"`
}

// Load loads configuration from file. The YAML file uses `pcap-bridge:` as
// root key; env vars map through the key replacer (key
// "pcap-bridge.log.level" → env "PCAP_BRIDGE_LOG_LEVEL").
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.PcapBridge

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	cfg := root.PcapBridge
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}

// setDefaults sets default values for configuration. All keys use the
// "pcap-bridge." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("pcap-bridge.agent.listen", "127.0.0.1:8080")

	// Control defaults
	v.SetDefault("pcap-bridge.control.socket", "/var/run/pcap-bridge.sock")
	v.SetDefault("pcap-bridge.control.pid_file", "/var/run/pcap-bridge.pid")

	// Bridge defaults
	v.SetDefault("pcap-bridge.bridge.queue-capacity", bridge.DefaultQueueCapacity)

	// Capture defaults
	v.SetDefault("pcap-bridge.capture.source", "host")
	v.SetDefault("pcap-bridge.capture.live", false)
	v.SetDefault("pcap-bridge.capture.snap_len", 65535)
	v.SetDefault("pcap-bridge.capture.buffer_size_mb", 8)
	v.SetDefault("pcap-bridge.capture.timeout_ms", 100)

	// Metrics defaults
	v.SetDefault("pcap-bridge.metrics.enabled", false)
	v.SetDefault("pcap-bridge.metrics.listen", ":9091")

	// Log defaults
	v.SetDefault("pcap-bridge.log.level", "info")
	v.SetDefault("pcap-bridge.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("pcap-bridge.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("pcap-bridge.log.console", true)
	v.SetDefault("pcap-bridge.log.file.enabled", false)
	v.SetDefault("pcap-bridge.log.file.path", "/var/log/pcap-bridge/pcap-bridge.log")
	v.SetDefault("pcap-bridge.log.file.max_size_mb", 100)
	v.SetDefault("pcap-bridge.log.file.max_age_days", 30)
	v.SetDefault("pcap-bridge.log.file.max_backups", 5)
	v.SetDefault("pcap-bridge.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}

	switch cfg.Capture.Source {
	case "host":
	case "static":
		if len(cfg.Interfaces) == 0 {
			return fmt.Errorf("capture.source=static requires a non-empty interfaces list")
		}
	default:
		return fmt.Errorf("invalid capture.source: %s (must be host/static)", cfg.Capture.Source)
	}

	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = 65535
	}
	if cfg.Bridge.QueueCapacity <= 0 {
		cfg.Bridge.QueueCapacity = bridge.DefaultQueueCapacity
	}

	seen := make(map[uint32]bool, len(cfg.Interfaces))
	for _, ifc := range cfg.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("interfaces entry id=%d has no name", ifc.ID)
		}
		if seen[ifc.ID] {
			return fmt.Errorf("duplicate interface id %d", ifc.ID)
		}
		seen[ifc.ID] = true
	}
	return nil
}

// InterfaceSource builds the bridge interface source the configuration
// selects.
func (cfg *GlobalConfig) InterfaceSource() bridge.InterfaceSource {
	if cfg.Capture.Source == "static" {
		list := make([]core.InterfaceInfo, 0, len(cfg.Interfaces))
		for _, ifc := range cfg.Interfaces {
			list = append(list, core.InterfaceInfo{
				InterfaceID: ifc.ID,
				Name:        ifc.Name,
				Description: ifc.Description,
			})
		}
		return bridge.NewStaticSource(list)
	}
	return bridge.HostSource{}
}
