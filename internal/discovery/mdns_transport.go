// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package discovery

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// mdnsBrowser implements Browser against the real local-network mDNS
// responder.
type mdnsBrowser struct{}

func (mdnsBrowser) Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]Entry, error) {
	params := mdns.DefaultParams(serviceType)
	entriesCh := make(chan *mdns.ServiceEntry, 32)
	params.Entries = entriesCh
	params.Timeout = timeout

	var out []Entry
	collected := make(chan struct{})
	go func() {
		for e := range entriesCh {
			out = append(out, Entry{
				Name:       e.Name,
				Host:       e.Host,
				AddrV4:     e.AddrV4,
				Port:       e.Port,
				InfoFields: e.InfoFields,
			})
		}
		close(collected)
	}()

	err := mdns.Query(params)
	close(entriesCh)
	<-collected
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mdnsAnnouncer implements Announcer against the real local-network mDNS
// responder; each call owns its own *mdns.Server, shut down by unregister.
type mdnsAnnouncer struct{}

func (mdnsAnnouncer) Announce(instance, serviceType, host string, port int, ips []net.IP, txt []string) (func() error, error) {
	info, err := mdns.NewMDNSService(instance, serviceType, "", host, port, ips, txt)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: info})
	if err != nil {
		return nil, err
	}
	return server.Shutdown, nil
}
