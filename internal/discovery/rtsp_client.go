// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package discovery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// rtspSDPFetcher fetches SDP via a minimal RTSP DESCRIBE request. It speaks
// only enough RTSP/1.0 to read a 200 response and its SDP body; nothing
// else about the mini RTSP server's protocol is implemented here.
type rtspSDPFetcher struct{}

func (rtspSDPFetcher) FetchSDP(ctx context.Context, rtspURL string) (string, error) {
	host, port, path, err := parseRTSPURL(rtspURL)
	if err != nil {
		return "", err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return "", fmt.Errorf("discovery: dial %s: %w", rtspURL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	}

	req := fmt.Sprintf("DESCRIBE rtsp://%s%s RTSP/1.0\r\nCSeq: 1\r\nAccept: application/sdp\r\n\r\n", net.JoinHostPort(host, strconv.Itoa(port)), path)
	if _, err := io.WriteString(conn, req); err != nil {
		return "", fmt.Errorf("discovery: write DESCRIBE: %w", err)
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("discovery: read status line: %w", err)
	}
	if !strings.Contains(status, "200") {
		return "", fmt.Errorf("discovery: rtsp server returned %q", strings.TrimSpace(status))
	}

	contentLength := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("discovery: read headers: %w", err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if name, value, ok := strings.Cut(trimmed, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}

	var body []byte
	if contentLength > 0 {
		body = make([]byte, contentLength)
		if _, err := io.ReadFull(reader, body); err != nil {
			return "", fmt.Errorf("discovery: read sdp body: %w", err)
		}
	} else {
		body, err = io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("discovery: read sdp body: %w", err)
		}
	}

	if len(body) == 0 {
		return "", fmt.Errorf("discovery: empty sdp response from %s", rtspURL)
	}
	return string(body), nil
}

// parseRTSPURL splits an rtsp:// URL into host, port (defaulting to 554),
// and path.
func parseRTSPURL(raw string) (host string, port int, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, "", fmt.Errorf("discovery: invalid rtsp url %q: %w", raw, err)
	}
	if u.Scheme != "rtsp" {
		return "", 0, "", fmt.Errorf("discovery: url must use rtsp scheme, got %q", raw)
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, "", fmt.Errorf("discovery: rtsp url %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, "", fmt.Errorf("discovery: invalid rtsp port in %q: %w", raw, err)
		}
	} else {
		port = 554
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return host, port, path, nil
}
