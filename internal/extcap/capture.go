package extcap

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"icc.tech/pcap-bridge/internal/agent"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
	"icc.tech/pcap-bridge/internal/receiver"
)

// CaptureOptions parameterise one extcap capture session.
type CaptureOptions struct {
	// Token is the extcap interface value (e.g. "vpp_1").
	Token string
	// Fifo is the path Wireshark wants the pcap stream written to.
	Fifo string
	// AgentAddr is the host:port of the dataplane agent REST endpoint.
	AgentAddr string
	// Direction selects rx, tx or both.
	Direction string
	// BridgeAddr optionally fixes the local address the agent should send
	// datagrams to. Empty means pick a free UDP port on the address facing
	// the agent.
	BridgeAddr string
}

// RunCapture drives one capture session: listen for relayed datagrams,
// enable capture on the agent, stream pcap into the fifo until Wireshark
// closes it or ctx is cancelled, then disable capture again.
//
// Diagnostics go to the logger only. Stdout and the fifo belong to the
// analyzer; a stray print would corrupt the capture stream.
func RunCapture(ctx context.Context, opts CaptureOptions) error {
	id, err := ParseToken(opts.Token)
	if err != nil {
		return err
	}

	client := agent.NewClient(opts.AgentAddr)
	name, err := interfaceName(ctx, client, id)
	if err != nil {
		return err
	}

	rcv, bridgeAddr, err := openReceiver(opts)
	if err != nil {
		return err
	}
	defer rcv.Close()

	// Opening the fifo write-side blocks until Wireshark has the read
	// side open, which is exactly the synchronisation we need.
	out, err := os.OpenFile(opts.Fifo, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open fifo %s: %w", opts.Fifo, err)
	}
	defer out.Close()

	return runSession(ctx, client, rcv, out, id, name, bridgeAddr, opts.Direction)
}

// runSession is RunCapture after all resources are open; split out so tests
// can drive it with pipes instead of a real fifo.
func runSession(ctx context.Context, client *agent.Client, rcv *receiver.Receiver,
	out io.Writer, id uint32, name, bridgeAddr, direction string) error {

	sess := receiver.NewSession(id, receiver.NewEmitter(out))
	if err := sess.Start(); err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}
	rcv.Attach(sess)
	defer rcv.Detach(sess)

	if _, err := client.Enable(ctx, name, bridgeAddr, direction); err != nil {
		return err
	}
	log.GetLogger().WithField("interface", name).
		WithField("bridge_address", bridgeAddr).
		Info("capture session started")

	select {
	case <-sess.Done():
		// Wireshark closed the fifo: normal end of capture.
	case <-ctx.Done():
		sess.Close()
	}

	// Best-effort teardown; the agent may already be gone.
	disableCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disable(disableCtx, name); err != nil {
		log.GetLogger().WithError(err).Warn("disabling capture on teardown")
	}
	log.GetLogger().WithField("interface", name).
		WithField("packets", sess.Packets()).
		Info("capture session ended")
	return nil
}

func interfaceName(ctx context.Context, client *agent.Client, id uint32) (string, error) {
	list, err := client.Interfaces(ctx)
	if err != nil {
		return "", err
	}
	for _, info := range list {
		if info.InterfaceID == id {
			return info.Name, nil
		}
	}
	return "", fmt.Errorf("%w: id %d", core.ErrInterfaceNotFound, id)
}

// openReceiver binds the datagram socket the agent will send to and works
// out the address to advertise for it.
func openReceiver(opts CaptureOptions) (*receiver.Receiver, string, error) {
	if opts.BridgeAddr != "" {
		rcv, err := receiver.ListenUDP(opts.BridgeAddr)
		if err != nil {
			return nil, "", err
		}
		return rcv, rcv.LocalAddr().String(), nil
	}

	host, err := localHostFacing(opts.AgentAddr)
	if err != nil {
		return nil, "", err
	}
	rcv, err := receiver.ListenUDP(net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, "", err
	}
	return rcv, rcv.LocalAddr().String(), nil
}

// localHostFacing returns the local IPv4 the kernel would use to reach the
// agent, so the advertised bridge address is routable from the agent host.
func localHostFacing(agentAddr string) (string, error) {
	conn, err := net.Dial("udp4", agentAddr)
	if err != nil {
		return "", fmt.Errorf("probe route to agent %s: %w", agentAddr, err)
	}
	defer conn.Close()
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "", err
	}
	return host, nil
}
