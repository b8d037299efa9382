package mynet

import (
	"fmt"
	"net"

	"github.com/go-logr/logr"
	"github.com/jackpal/gateway"
)

// MainInterface returns the interface on the same network as the default
// gateway, with its address on that network.
func MainInterface(log logr.Logger) (*net.Interface, net.IP, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, nil, fmt.Errorf("finding network gateway: %w", err)
	}
	log.V(1).Info("Found gateway", "addr", gw.String())

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("listing interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if ip, ok := onNetwork(log, iface, gw); ok {
			log.V(1).Info("Selected interface", "interface", iface.Name, "ip", ip, "gw", gw)
			return &iface, ip, nil
		}
	}
	return nil, nil, fmt.Errorf("did not find any interface on the same network as the network gateway IP %v", gw)
}

func onNetwork(log logr.Logger, iface net.Interface, gw net.IP) (net.IP, bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		log.Error(err, "Finding addresses", "interface", iface.Name)
		return nil, false
	}
	for _, addr := range addrs {
		ip, nw, err := net.ParseCIDR(addr.String())
		if err != nil {
			log.V(1).Info("Skipping address", "interface", iface.Name, "addr", addr.String())
			continue
		}
		if nw.Contains(gw) {
			return ip, true
		}
	}
	return nil, false
}
