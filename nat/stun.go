package nat

import (
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// UDPStunQuerier sends a real STUN binding request over UDP and decodes the
// XOR-MAPPED-ADDRESS attribute from the response, the production
// StunQuerier wired into cmd/daanode in place of a nil collaborator.
type UDPStunQuerier struct{}

// QueryBinding dials server (accepting either "host:port" or a
// "stun:host:port" URI as configured in StunConfig.Servers), sends one
// binding request and parses the mapped address from the reply.
func (UDPStunQuerier) QueryBinding(server string, timeout time.Duration) (ids.NodeAddress, error) {
	addr := strings.TrimPrefix(server, "stun:")

	conn, err := net.DialTimeout("udp4", addr, timeout)
	if err != nil {
		return ids.NodeAddress{}, errkind.Wrap(errkind.Timeout, err, "nat: dial stun server")
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return ids.NodeAddress{}, errkind.Wrap(errkind.Validation, err, "nat: build stun request")
	}
	if _, err := conn.Write(msg.Raw); err != nil {
		return ids.NodeAddress{}, errkind.Wrap(errkind.Timeout, err, "nat: send stun request")
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return ids.NodeAddress{}, errkind.Wrap(errkind.Timeout, err, "nat: read stun response")
	}

	reply := &stun.Message{Raw: buf[:n]}
	if err := reply.Decode(); err != nil {
		return ids.NodeAddress{}, errkind.Wrap(errkind.Validation, err, "nat: decode stun response")
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(reply); err != nil {
		var mapped stun.MappedAddress
		if err2 := mapped.GetFrom(reply); err2 != nil {
			return ids.NodeAddress{}, errkind.Wrap(errkind.Validation, err, "nat: no mapped address in stun response")
		}
		return ids.NewSocketAddress(mapped.IP.String(), uint16(mapped.Port))
	}
	return ids.NewSocketAddress(xorAddr.IP.String(), uint16(xorAddr.Port))
}

// LocalHostCandidateSource enumerates the machine's non-loopback unicast
// addresses as ICE host candidates.
type LocalHostCandidateSource struct{}

// HostAddresses returns every up, non-loopback IPv4/IPv6 unicast address
// bound to a local interface, with port 0 (the ICE layer fills in the
// listening socket's actual port once one is bound).
func (LocalHostCandidateSource) HostAddresses() ([]ids.NodeAddress, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errkind.Wrap(errkind.Resource, err, "nat: enumerate interfaces")
	}

	var out []ids.NodeAddress
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			addr, err := ids.NewSocketAddress(ipNet.IP.String(), 0)
			if err != nil {
				continue
			}
			out = append(out, addr)
		}
	}
	return out, nil
}
