// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"icc.tech/pcap-bridge/internal/agent"
	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/command"
	"icc.tech/pcap-bridge/internal/config"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/metrics"
	"icc.tech/pcap-bridge/internal/source"
	"icc.tech/pcap-bridge/internal/source/afpacket"
	"icc.tech/pcap-bridge/internal/version"
)

// Daemon manages the bridge agent process lifecycle: the bridge itself, the
// REST control endpoint, the local UDS control socket, optional live
// capture pumps and the metrics server.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string

	bridge        *bridge.Bridge
	restServer    *agent.Server
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server
	pumps         []*source.Pump

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New creates a Daemon from the configuration at configPath. An empty path
// uses built-in defaults.
func New(configPath string) (*Daemon, error) {
	var cfg *config.GlobalConfig
	if configPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	log.Init(&d.config.Log)

	log.GetLogger().WithField("version", version.Version).
		WithField("config", d.configPath).
		WithField("listen", d.config.Agent.Listen).
		Info("starting pcap-bridge daemon")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.bridge = bridge.New(d.config.InterfaceSource(), d.config.Bridge)

	if d.config.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.config.Metrics.Listen)
		d.metricsServer.Start()
	}

	d.restServer = agent.NewServer(d.config.Agent.Listen, d.bridge)
	d.restServer.Start()

	d.cmdHandler = command.NewCommandHandler(d.bridge)
	d.cmdHandler.SetShutdownFunc(func() {
		log.GetLogger().Info("shutdown triggered via daemon_shutdown command")
		close(d.shutdownChan)
	})
	d.udsServer = command.NewUDSServer(d.config.Control.Socket, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			log.GetLogger().WithError(err).Error("uds server failed")
		}
	}()

	if d.config.Capture.Live {
		if err := d.startPumps(); err != nil {
			// Non-fatal: the control surface still works for in-process
			// taps even when a ring fails to open.
			log.GetLogger().WithError(err).Error("failed to start live capture")
		}
	}

	log.GetLogger().Info("daemon started successfully")
	return nil
}

// startPumps opens one AF_PACKET ring per capturable interface and pumps it
// into the bridge tap. Packets only travel on while their interface is
// enabled, so idle rings cost reads but no relaying.
func (d *Daemon) startPumps() error {
	list, err := d.bridge.ListInterfaces()
	if err != nil {
		return err
	}
	for _, info := range list {
		src, err := afpacket.NewSource(afpacket.Config{
			Device:       info.Name,
			SnapLen:      d.config.Capture.SnapLen,
			BufferSizeMB: d.config.Capture.BufferSizeMB,
			TimeoutMs:    d.config.Capture.TimeoutMs,
			BPFFilter:    d.config.Capture.BPFFilter,
		})
		if err != nil {
			return err
		}
		pump := source.NewPump(d.bridge, src, info.InterfaceID)
		if err := pump.Start(d.ctx); err != nil {
			log.GetLogger().WithError(err).
				WithField("interface", info.Name).
				Warn("live capture unavailable on interface")
			continue
		}
		d.pumps = append(d.pumps, pump)
		log.GetLogger().WithField("interface", info.Name).Info("live capture pump started")
	}
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	log.GetLogger().Info("initiating graceful shutdown")

	for _, pump := range d.pumps {
		pump.Stop()
	}
	d.pumps = nil

	if d.restServer != nil {
		d.restServer.Stop()
	}
	if d.udsServer != nil {
		d.udsServer.Stop()
	}
	if d.bridge != nil {
		d.bridge.Shutdown()
	}
	if d.metricsServer != nil {
		d.metricsServer.Stop()
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered by an
// OS signal or the daemon_shutdown command.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)

	log.GetLogger().Info("daemon running, waiting for signals or commands")

	select {
	case sig := <-d.sigChan:
		log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
		d.Stop()
		return nil
	case <-d.shutdownChan:
		log.GetLogger().Info("shutdown triggered by command")
		d.Stop()
		return nil
	case <-d.ctx.Done():
		d.Stop()
		return d.ctx.Err()
	}
}

// Bridge exposes the bridge for embedding processes that tap in directly.
func (d *Daemon) Bridge() *bridge.Bridge {
	return d.bridge
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.config.Control.PIDFile == "" {
		return nil
	}
	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(d.config.Control.PIDFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.config.Control.PIDFile, err)
	}
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.config.Control.PIDFile == "" {
		return nil
	}
	if err := os.Remove(d.config.Control.PIDFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.config.Control.PIDFile, err)
	}
	return nil
}
