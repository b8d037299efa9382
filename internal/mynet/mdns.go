package mynet

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
	mdns "github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Publisher answers mDNS queries for <hostname>.local and advertises one
// DNS-SD service, both on the interface facing the gateway.
type Publisher struct {
	log      logr.Logger
	hostname string
	instance string
	service  string
	port     int
	txt      []string

	mu      sync.Mutex
	conn    *mdns.Conn
	sockets []*net.UDPConn
	server  *zeroconf.Server
}

func NewPublisher(log logr.Logger, hostname, instance, service string, port int, txt []string) *Publisher {
	return &Publisher{
		log:      log,
		hostname: hostname,
		instance: instance,
		service:  service,
		port:     port,
		txt:      txt,
	}
}

// Publish starts the responder and registers the service. It can be called
// again after a failure; once it succeeded it does nothing.
func (p *Publisher) Publish() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		return nil
	}

	iface, ip, err := MainInterface(p.log)
	if err != nil {
		return err
	}

	if p.conn == nil {
		if err := p.startResponder(ip); err != nil {
			return err
		}
	}

	server, err := zeroconf.Register(p.instance, p.service, "local.", p.port, p.txt, []net.Interface{*iface})
	if err != nil {
		return fmt.Errorf("registering %s service: %w", p.service, err)
	}
	p.server = server
	p.log.Info("Service advertised", "instance", p.instance, "service", p.service, "port", p.port, "interface", iface.Name)
	return nil
}

func (p *Publisher) startResponder(ip net.IP) error {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return fmt.Errorf("resolving mDNS IPv4 address: %w", err)
	}
	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return fmt.Errorf("listening on mDNS IPv4 address: %w", err)
	}

	var pc6 *ipv6.PacketConn
	sockets := []*net.UDPConn{l4}
	if addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6); err == nil {
		if l6, err := net.ListenUDP("udp6", addr6); err == nil {
			pc6 = ipv6.NewPacketConn(l6)
			sockets = append(sockets, l6)
		} else {
			p.log.V(1).Info("No IPv6 mDNS", "error", err.Error())
		}
	}

	localName := p.hostname + ".local"
	conn, err := mdns.Server(ipv4.NewPacketConn(l4), pc6, &mdns.Config{
		LocalNames:   []string{localName},
		LocalAddress: ip,
	})
	if err != nil {
		for _, s := range sockets {
			s.Close()
		}
		return fmt.Errorf("publishing %s: %w", localName, err)
	}
	p.conn = conn
	p.sockets = sockets
	p.log.Info("mDNS responder started", "hostname", localName, "ip", ip.String())
	return nil
}

func (p *Publisher) Published() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.server != nil
}

func (p *Publisher) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		p.server.Shutdown()
		p.server = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error(err, "Closing mDNS responder")
		}
		p.conn = nil
	}
	for _, s := range p.sockets {
		s.Close()
	}
	p.sockets = nil
}

// LookupService browses the local domain and returns the first instance of
// service as a tcp:// URL.
func LookupService(ctx context.Context, log logr.Logger, service string) (*url.URL, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan *url.URL, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if !strings.Contains(entry.Service, service) || len(entry.AddrIPv4) == 0 {
					continue
				}
				log.V(1).Info("Found service", "instance", entry.Instance, "addr", entry.AddrIPv4[0], "port", entry.Port)
				select {
				case found <- &url.URL{Scheme: "tcp", Host: net.JoinHostPort(entry.AddrIPv4[0].String(), fmt.Sprint(entry.Port))}:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, fmt.Errorf("browsing %s: %w", service, err)
	}

	<-ctx.Done()
	select {
	case u := <-found:
		return u, nil
	default:
		return nil, fmt.Errorf("no instance found for service %s", service)
	}
}
