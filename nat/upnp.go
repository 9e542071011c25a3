package nat

import (
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/errkind"
)

// Protocol is the transport protocol a port mapping applies to.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"
)

// upnpClient is the subset of the generated WANIPConnection1 client this
// package drives; narrowed to an interface so tests can fake a gateway.
type upnpClient interface {
	AddPortMapping(externalPort uint16, protocol Protocol, internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error
	DeletePortMapping(externalPort uint16, protocol Protocol) error
}

// UPnPMapper requests automatic port forwarding from the LAN gateway,
// supplementing STUN/TURN the way igd_next does in the original source —
// an optional best-effort path. Traversal does not call it and
// cmd/daanode does not start it.
type UPnPMapper struct {
	ctx    *config.CoreContext
	client upnpClient
}

// DiscoverUPnPGateway searches the LAN for a UPnP Internet Gateway Device.
// A missing gateway is not an error: the mapper degrades to a no-op so
// callers always fall through to STUN/TURN.
func DiscoverUPnPGateway(ctx *config.CoreContext) (*UPnPMapper, error) {
	clients, _, err := internetgateway2.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		if ctx != nil && ctx.Log != nil {
			ctx.Log.Warn("nat: no upnp gateway found", "err", err)
		}
		return &UPnPMapper{ctx: ctx, client: nil}, nil
	}
	return &UPnPMapper{ctx: ctx, client: wrapClient(clients[0])}, nil
}

// AddPort requests external_port -> internal_port forwarding for the given
// protocol, held for the given lease (0 = infinite, mirroring the Rust
// source's default).
func (m *UPnPMapper) AddPort(protocol Protocol, externalPort, internalPort uint16, internalIP, description string, lease time.Duration) error {
	if m.client == nil {
		return nil
	}
	leaseSeconds := uint32(lease / time.Second)
	if err := m.client.AddPortMapping(externalPort, protocol, internalPort, internalIP, true, description, leaseSeconds); err != nil {
		return errkind.Wrap(errkind.Resource, err, "nat: add upnp port mapping")
	}
	if m.ctx != nil && m.ctx.Log != nil {
		m.ctx.Log.Info("nat: added upnp port mapping", "external", externalPort, "internal", internalPort)
	}
	return nil
}

// RemovePort retracts a previously-added mapping.
func (m *UPnPMapper) RemovePort(protocol Protocol, externalPort uint16) error {
	if m.client == nil {
		return nil
	}
	if err := m.client.DeletePortMapping(externalPort, protocol); err != nil {
		return errkind.Wrap(errkind.Resource, err, "nat: remove upnp port mapping")
	}
	return nil
}

// wanIPClient adapts *internetgateway2.WANIPConnection1 to upnpClient.
type wanIPClient struct {
	inner *internetgateway2.WANIPConnection1
}

func wrapClient(c *internetgateway2.WANIPConnection1) upnpClient {
	return &wanIPClient{inner: c}
}

func (w *wanIPClient) AddPortMapping(externalPort uint16, protocol Protocol, internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error {
	return w.inner.AddPortMapping("", externalPort, string(protocol), internalPort, internalClient, enabled, description, leaseDuration)
}

func (w *wanIPClient) DeletePortMapping(externalPort uint16, protocol Protocol) error {
	return w.inner.DeletePortMapping("", externalPort, string(protocol))
}
