// Package netutil discovers host network facts needed when rendering
// service endpoints, such as the address a deployed container should
// advertise to its own web UI.
package netutil

import (
	"fmt"
	"net"
)

// OutboundIP returns the IPv4 address the host uses for outbound traffic.
// It opens a UDP socket toward a public resolver; no packets are sent,
// the kernel just picks the routable source address.
func OutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return nil, fmt.Errorf("determining outbound address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP, nil
}

// PrimaryAddress returns the host's routable IPv4 address: first global
// unicast address found on a local interface, falling back to the source
// address of an outbound probe. An empty string means no address could be
// derived; callers treat that as non-fatal.
func PrimaryAddress() string {
	if ip := interfaceAddress(); ip != "" {
		return ip
	}
	if ip, err := OutboundIP(); err == nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// interfaceAddress scans local interfaces for the first global unicast
// IPv4 address.
func interfaceAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || !ip.IsGlobalUnicast() {
			continue
		}
		return ip.String()
	}
	return ""
}
