// Package discovery finds the event server and announces the viewer over
// mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

var ErrNotFound = errors.New("no server found")

// Server is one discovered service instance.
type Server struct {
	Name string
	Host string
	Port int
	Path string
}

// URL is the websocket address of s.
func (s Server) URL() string {
	path := s.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), path)
}

// Browse queries service (e.g. "_octopus._tcp") until a server answers, the
// timeout elapses or ctx is done.
func Browse(ctx context.Context, service string, timeout time.Duration) (Server, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan Server, 1)
	go func() {
		for e := range entries {
			if s, ok := fromEntry(e); ok {
				select {
				case found <- s:
				default:
				}
			}
		}
	}()

	done := make(chan error, 1)
	go func() {
		params := mdns.DefaultParams(service)
		params.Entries = entries
		params.Timeout = timeout
		params.DisableIPv6 = true
		err := mdns.Query(params)
		close(entries)
		done <- err
	}()

	select {
	case s := <-found:
		return s, nil
	case <-ctx.Done():
		return Server{}, ctx.Err()
	case err := <-done:
		select {
		case s := <-found:
			return s, nil
		default:
		}
		if err != nil {
			return Server{}, fmt.Errorf("mdns query: %w", err)
		}
		return Server{}, fmt.Errorf("%w: %s", ErrNotFound, service)
	}
}

func fromEntry(e *mdns.ServiceEntry) (Server, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Server{}, false
	}
	s := Server{Name: e.Name, Host: e.AddrV4.String(), Port: e.Port}
	for _, f := range e.InfoFields {
		if v, ok := strings.CutPrefix(f, "path="); ok {
			s.Path = v
		}
	}
	return s, true
}

// Advertise announces service on port until ctx is done.
func Advertise(ctx context.Context, instance, service string, port int, txt ...string) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("local addresses: %w", err)
	}
	zone, err := mdns.NewMDNSService(instance, service, "", "", port, ips, txt)
	if err != nil {
		return fmt.Errorf("mdns service: %w", err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()
	return nil
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
