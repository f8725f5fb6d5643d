package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"icc.tech/pcap-bridge/internal/core"
)

// Client talks to a remote agent REST server. The extcap front end and the
// CLI subcommands use it.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the agent at host:port.
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Interfaces lists the capturable interfaces of the agent's dataplane.
func (c *Client) Interfaces(ctx context.Context) ([]core.InterfaceInfo, error) {
	var out interfacesResponse
	if err := c.get(ctx, "/interfaces", &out); err != nil {
		return nil, err
	}
	return out.Interfaces, nil
}

// Stats fetches the relay counters.
func (c *Client) Stats(ctx context.Context) (*StatsReport, error) {
	var out StatsReport
	if err := c.get(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enable starts capture on the named interface towards bridgeAddr.
func (c *Client) Enable(ctx context.Context, iface, bridgeAddr, direction string) (uint32, error) {
	var out enableResponse
	err := c.post(ctx, "/enable", enableRequest{
		Interface:     iface,
		BridgeAddress: bridgeAddr,
		Direction:     direction,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.InterfaceID, nil
}

// Disable stops capture on the named interface.
func (c *Client) Disable(ctx context.Context, iface string) error {
	var out successResponse
	return c.post(ctx, "/disable", disableRequest{Interface: iface}, &out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.roundTrip(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.roundTrip(req, out)
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw := json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("agent response %s: %w", req.URL.Path, err)
	}

	var envelope errorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("agent response %s: %w", req.URL.Path, err)
	}
	if !envelope.Success {
		if envelope.Error == "" {
			envelope.Error = resp.Status
		}
		return fmt.Errorf("agent refused %s: %s", req.URL.Path, envelope.Error)
	}
	return json.Unmarshal(raw, out)
}
