// Package proxy builds HTTP clients that tunnel API traffic through a
// SOCKS5 proxy. Used when MINDMATE_PROXY is set.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultTimeout bounds one API round trip through the tunnel. Speech
// synthesis of a long reply is the slowest call we make.
const DefaultTimeout = 120 * time.Second

// NewSocksClient returns an *http.Client dialing through the SOCKS5
// proxy at addr.
func NewSocksClient(addr string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
