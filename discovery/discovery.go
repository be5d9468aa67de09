// Package discovery advertises a running audio sink on the local network
// via mDNS and browses for other sinks advertising the same way, so an
// operator's enumerate command can find every sink on the LAN without
// being told its address up front.
package discovery

import (
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_audiosink._tcp"

// Peer describes a discovered sink.
type Peer struct {
	Name string
	Host string
	Port int
	ID   string // the instance's uuid, carried in the TXT record
}

// Advertise registers name (the commands pass "audiosink-" followed by the
// first eight characters of id) as an audiosink
// instance reachable on port, tagging it with id so browsers can tell two
// advertisements of the same sink apart from two different sinks. The
// returned server stays up until Shutdown is called.
func Advertise(name string, port int, id string) (*mdns.Server, error) {
	var ips []net.IP
	if ip, err := localIPv4(); err == nil {
		ips = append(ips, ip)
	}

	service, err := mdns.NewMDNSService(name, serviceType, "", "", port, ips, []string{"id=" + id})
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start server: %w", err)
	}
	return server, nil
}

// Browse queries the LAN once, with the given timeout, and returns every
// audiosink instance that answered.
func Browse(timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Peer, 1)

	go func() {
		var peers []Peer
		for e := range entries {
			host := e.AddrV4.String()
			if e.AddrV4 == nil {
				host = e.Addr.String()
			}
			peers = append(peers, Peer{
				Name: e.Name,
				Host: host,
				Port: e.Port,
				ID:   idFromTXT(e.InfoFields),
			})
		}
		done <- peers
	}()

	params := &mdns.QueryParam{
		Service: serviceType,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	}
	if err := mdns.Query(params); err != nil {
		close(entries)
		return nil, fmt.Errorf("discovery: query: %w", err)
	}
	close(entries)

	return <-done, nil
}

func idFromTXT(fields []string) string {
	for _, f := range fields {
		if len(f) > 3 && f[:3] == "id=" {
			return f[3:]
		}
	}
	return ""
}

// localIPv4 returns the first non-loopback IPv4 address configured on any
// up interface, used when the caller doesn't pin a specific host to
// advertise.
func localIPv4() (net.IP, error) {
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
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					return ip4, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("discovery: no non-loopback IPv4 address found")
}
