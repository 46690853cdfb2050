// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package discovery implements the Discovery Service: mDNS-based
// discovery of remote AES67/RAVENNA streams, SDP retrieval for discovered
// streams, and announcement of SDP this instance owns.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/log"
)

// DiscoveredStream is one remote stream currently visible on the network,
// refreshed on every browse sweep and purged when it goes stale.
type DiscoveredStream struct {
	ID         string
	OriginIP   string
	FetchedSDP string
	LastSeen   time.Time
}

// AnnouncedStream is one locally-owned AES67 output this instance is
// advertising via mDNS.
type AnnouncedStream struct {
	FlowID   string
	BlockID  string
	OriginIP string
	SDP      string
}

// Entry is one mDNS browse result, trimmed to the fields the service needs.
type Entry struct {
	Name       string
	Host       string
	AddrV4     net.IP
	Port       int
	InfoFields []string
}

// Browser discovers services of a given mDNS type on the local network.
type Browser interface {
	Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]Entry, error)
}

// Announcer advertises a service via mDNS until unregistered.
type Announcer interface {
	Announce(instance, serviceType, host string, port int, ips []net.IP, txt []string) (unregister func() error, err error)
}

// SDPFetcher retrieves the SDP a remote stream advertises. The RTSP
// DESCRIBE implementation lives in rtsp_client.go; the mini RTSP server
// itself is out of scope here.
type SDPFetcher interface {
	FetchSDP(ctx context.Context, rtspURL string) (string, error)
}

// Service owns both halves of discovery: the set of remote streams found by
// browsing, and the set of local streams announced for others to find.
type Service struct {
	browser     Browser
	announcer   Announcer
	fetcher     SDPFetcher
	serviceType string
	staleAfter  time.Duration

	mu         sync.Mutex
	streams    map[string]DiscoveredStream
	announced  map[string]AnnouncedStream
	unregister map[string]func() error
}

// New builds a Service around injected Browser/Announcer/SDPFetcher
// implementations, keeping the mDNS transport swappable for tests.
func New(browser Browser, announcer Announcer, fetcher SDPFetcher, serviceType string, staleAfter time.Duration) *Service {
	return &Service{
		browser:     browser,
		announcer:   announcer,
		fetcher:     fetcher,
		serviceType: serviceType,
		staleAfter:  staleAfter,
		streams:     map[string]DiscoveredStream{},
		announced:   map[string]AnnouncedStream{},
		unregister:  map[string]func() error{},
	}
}

// NewMDNS wires the real hashicorp/mdns-backed Browser, Announcer, and an
// RTSP DESCRIBE SDPFetcher.
func NewMDNS(serviceType string, staleAfter time.Duration) *Service {
	return New(&mdnsBrowser{}, &mdnsAnnouncer{}, rtspSDPFetcher{}, serviceType, staleAfter)
}

// Start runs the browse-and-sweep loop until ctx is cancelled or the
// returned stop function is called.
func (s *Service) Start(ctx context.Context, sweepPeriod time.Duration) (stop func()) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(loopCtx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	logger := log.WithComponent("discovery")

	entries, err := s.browser.Browse(ctx, s.serviceType, 2*time.Second)
	if err != nil {
		logger.Warn().Err(err).Str("service_type", s.serviceType).Msg("mdns browse failed")
	} else {
		now := time.Now()
		for _, e := range entries {
			s.observe(ctx, e, now)
		}
	}

	s.mu.Lock()
	var stale []string
	for id, st := range s.streams {
		if time.Since(st.LastSeen) > s.staleAfter {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(s.streams, id)
	}
	s.mu.Unlock()

	for _, id := range stale {
		logger.Info().Str("stream_id", id).Msg("discovered stream went stale")
	}
}

func (s *Service) observe(ctx context.Context, e Entry, now time.Time) {
	s.mu.Lock()
	existing, known := s.streams[e.Name]
	existing.ID = e.Name
	if e.AddrV4 != nil {
		existing.OriginIP = e.AddrV4.String()
	} else {
		existing.OriginIP = e.Host
	}
	existing.LastSeen = now
	s.streams[e.Name] = existing
	s.mu.Unlock()

	if known && existing.FetchedSDP != "" {
		return
	}
	if s.fetcher == nil {
		return
	}

	url := rtspURLFromEntry(e)
	if url == "" {
		return
	}
	sdp, err := s.fetcher.FetchSDP(ctx, url)
	if err != nil {
		log.WithComponent("discovery").Warn().Err(err).Str("stream_id", e.Name).Msg("sdp fetch failed")
		return
	}

	s.mu.Lock()
	cur := s.streams[e.Name]
	cur.FetchedSDP = sdp
	s.streams[e.Name] = cur
	s.mu.Unlock()
}

// rtspURLFromEntry builds the RTSP DESCRIBE target from TXT record hints;
// an entry offering no rtsp_path is assumed to have no RTSP server and is
// left without a fetched SDP.
func rtspURLFromEntry(e Entry) string {
	path := txtValue(e.InfoFields, "rtsp_path")
	if path == "" {
		return ""
	}
	host := e.Host
	if e.AddrV4 != nil {
		host = e.AddrV4.String()
	}
	port := e.Port
	if port == 0 {
		port = 554
	}
	return fmt.Sprintf("rtsp://%s:%d%s", host, port, path)
}

func txtValue(fields []string, key string) string {
	prefix := key + "="
	for _, f := range fields {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			return f[len(prefix):]
		}
	}
	return ""
}

// Streams returns every currently-known discovered stream.
func (s *Service) Streams() []DiscoveredStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DiscoveredStream, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, st)
	}
	return out
}

// Stream returns one discovered stream by id.
func (s *Service) Stream(id string) (DiscoveredStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	return st, ok
}

// GetStreamSDP returns the raw SDP fetched for a discovered stream, if any.
func (s *Service) GetStreamSDP(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok || st.FetchedSDP == "" {
		return "", false
	}
	return st.FetchedSDP, true
}

// AnnounceAES67 advertises a locally-generated AES67 output's SDP via mDNS.
// The instance key is flowID+":"+blockID; announcing an already-announced
// key replaces the previous advertisement.
func (s *Service) AnnounceAES67(flowID, blockID, originIP, sdp string, port int) error {
	key := flowID + ":" + blockID

	s.mu.Lock()
	if unreg, exists := s.unregister[key]; exists {
		delete(s.unregister, key)
		s.mu.Unlock()
		_ = unreg()
		s.mu.Lock()
	}
	s.mu.Unlock()

	ip := net.ParseIP(originIP)
	var ips []net.IP
	if ip != nil {
		ips = []net.IP{ip}
	}

	unreg, err := s.announcer.Announce(key, s.serviceType, originIP, port, ips, []string{"sdp_available=1"})
	if err != nil {
		return fmt.Errorf("discovery: announce %s: %w", key, err)
	}

	s.mu.Lock()
	s.unregister[key] = unreg
	s.announced[key] = AnnouncedStream{FlowID: flowID, BlockID: blockID, OriginIP: originIP, SDP: sdp}
	s.mu.Unlock()
	return nil
}

// Withdraw stops announcing a previously-announced stream.
func (s *Service) Withdraw(flowID, blockID string) error {
	key := flowID + ":" + blockID

	s.mu.Lock()
	unreg, exists := s.unregister[key]
	delete(s.unregister, key)
	delete(s.announced, key)
	s.mu.Unlock()

	if !exists {
		return nil
	}
	return unreg()
}

// AnnouncedStreams returns every stream this instance currently advertises.
func (s *Service) AnnouncedStreams() []AnnouncedStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnnouncedStream, 0, len(s.announced))
	for _, a := range s.announced {
		out = append(out, a)
	}
	return out
}

// Close withdraws every announcement this instance holds.
func (s *Service) Close() error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.unregister))
	for k := range s.unregister {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.mu.Lock()
		unreg := s.unregister[key]
		delete(s.unregister, key)
		delete(s.announced, key)
		s.mu.Unlock()
		if unreg != nil {
			if err := unreg(); err != nil {
				log.WithComponent("discovery").Warn().Err(err).Str("key", key).Msg("failed to withdraw announcement")
			}
		}
	}
	return nil
}
