package bridge

import (
	"fmt"
	"net"

	"icc.tech/pcap-bridge/internal/core"
)

// InterfaceSource enumerates the capturable interfaces of the dataplane the
// agent fronts.
type InterfaceSource interface {
	Interfaces() ([]core.InterfaceInfo, error)
}

// StaticSource serves a fixed interface list, typically from configuration.
// It also backs tests.
type StaticSource struct {
	list []core.InterfaceInfo
}

func NewStaticSource(list []core.InterfaceInfo) *StaticSource {
	return &StaticSource{list: list}
}

func (s *StaticSource) Interfaces() ([]core.InterfaceInfo, error) {
	out := make([]core.InterfaceInfo, len(s.list))
	copy(out, s.list)
	return out, nil
}

// HostSource enumerates the host's own network interfaces, using the kernel
// interface index as the interface id.
type HostSource struct{}

func (HostSource) Interfaces() ([]core.InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate host interfaces: %w", err)
	}
	out := make([]core.InterfaceInfo, 0, len(ifaces))
	for _, i := range ifaces {
		out = append(out, core.InterfaceInfo{
			InterfaceID: uint32(i.Index),
			Name:        i.Name,
			Description: i.HardwareAddr.String(),
		})
	}
	return out, nil
}
