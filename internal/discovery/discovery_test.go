// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu      sync.Mutex
	entries []Entry
}

func (b *fakeBrowser) set(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = entries
}

func (b *fakeBrowser) Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...), nil
}

type fakeAnnouncer struct {
	mu           sync.Mutex
	registered   int
	unregistered int
}

func (a *fakeAnnouncer) Announce(instance, serviceType, host string, port int, ips []net.IP, txt []string) (func() error, error) {
	a.mu.Lock()
	a.registered++
	a.mu.Unlock()
	return func() error {
		a.mu.Lock()
		a.unregistered++
		a.mu.Unlock()
		return nil
	}, nil
}

type fakeFetcher struct {
	sdp string
}

func (f fakeFetcher) FetchSDP(ctx context.Context, rtspURL string) (string, error) {
	return f.sdp, nil
}

func TestService_BrowseAddsDiscoveredStream(t *testing.T) {
	browser := &fakeBrowser{}
	svc := New(browser, &fakeAnnouncer{}, fakeFetcher{sdp: "v=0\r\n"}, "_strom-aes67._udp", time.Minute)

	browser.set([]Entry{{Name: "ravenna1", AddrV4: net.ParseIP("10.0.0.5"), Port: 554, InfoFields: []string{"rtsp_path=/stream1"}}})

	stop := svc.Start(context.Background(), 5*time.Millisecond)
	defer stop()
	require.Eventually(t, func() bool {
		_, ok := svc.Stream("ravenna1")
		return ok
	}, time.Second, 5*time.Millisecond)

	st, ok := svc.Stream("ravenna1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", st.OriginIP)

	require.Eventually(t, func() bool {
		sdp, ok := svc.GetStreamSDP("ravenna1")
		return ok && sdp == "v=0\r\n"
	}, time.Second, 5*time.Millisecond)
}

func TestService_StaleStreamsAreSwept(t *testing.T) {
	browser := &fakeBrowser{}
	svc := New(browser, &fakeAnnouncer{}, fakeFetcher{}, "_strom-aes67._udp", 10*time.Millisecond)

	browser.set([]Entry{{Name: "ravenna1", AddrV4: net.ParseIP("10.0.0.5"), Port: 554}})
	stop := svc.Start(context.Background(), 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := svc.Stream("ravenna1")
		return ok
	}, time.Second, 5*time.Millisecond)

	browser.set(nil)
	require.Eventually(t, func() bool {
		_, ok := svc.Stream("ravenna1")
		return !ok
	}, time.Second, 5*time.Millisecond)
	stop()
}

func TestService_AnnounceAndWithdraw(t *testing.T) {
	announcer := &fakeAnnouncer{}
	svc := New(&fakeBrowser{}, announcer, fakeFetcher{}, "_strom-aes67._udp", time.Minute)

	require.NoError(t, svc.AnnounceAES67("flow1", "block1", "10.0.0.9", "v=0\r\n", 5004))
	require.Len(t, svc.AnnouncedStreams(), 1)

	require.NoError(t, svc.Withdraw("flow1", "block1"))
	require.Empty(t, svc.AnnouncedStreams())

	announcer.mu.Lock()
	defer announcer.mu.Unlock()
	require.Equal(t, 1, announcer.registered)
	require.Equal(t, 1, announcer.unregistered)
}

func TestService_Close_WithdrawsAllAnnouncements(t *testing.T) {
	announcer := &fakeAnnouncer{}
	svc := New(&fakeBrowser{}, announcer, fakeFetcher{}, "_strom-aes67._udp", time.Minute)

	require.NoError(t, svc.AnnounceAES67("flow1", "block1", "10.0.0.9", "v=0\r\n", 5004))
	require.NoError(t, svc.AnnounceAES67("flow2", "block1", "10.0.0.9", "v=0\r\n", 5006))

	require.NoError(t, svc.Close())
	require.Empty(t, svc.AnnouncedStreams())

	announcer.mu.Lock()
	defer announcer.mu.Unlock()
	require.Equal(t, 2, announcer.unregistered)
}
