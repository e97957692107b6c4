// Package transport opens the single HTTP/2 connection a session multiplexes
// its request streams over.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/httpver"
	"github.com/unkn0wn-root/hydro/internal/tlsconfig"
)

// Conn is one multiplexed session. Each RoundTrip opens a new stream and
// returns once response headers arrive; the body streams afterwards.
// *http2.ClientConn satisfies it.
type Conn interface {
	RoundTrip(req *http.Request) (*http.Response, error)
	Close() error
}

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Options struct {
	TLS     tlsconfig.Files
	BaseDir string

	DialTimeout     time.Duration
	ReadIdleTimeout time.Duration
	PingTimeout     time.Duration

	// Dial replaces the default TCP dialer.
	Dial DialFunc
}

const defaultDialTimeout = 30 * time.Second

// Dial connects to target. https negotiates h2 through ALPN and fails for
// any other protocol; http speaks h2c with prior knowledge.
func Dial(ctx context.Context, target *url.URL, opts Options) (Conn, error) {
	if target == nil || target.Host == "" {
		return nil, errdef.New(errdef.CodeConfig, "session url has no host")
	}
	scheme := strings.ToLower(target.Scheme)
	if scheme != "https" && scheme != "http" {
		return nil, errdef.New(errdef.CodeConfig, "unsupported scheme %q", target.Scheme)
	}

	addr := hostPort(target.Host, scheme)
	raw, err := dialer(opts)(ctx, "tcp", addr)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "dial %s", addr)
	}

	conn := raw
	if scheme == "https" {
		conn, err = handshake(ctx, raw, target.Hostname(), opts)
		if err != nil {
			raw.Close()
			return nil, err
		}
	}

	t := &http2.Transport{
		AllowHTTP:          true,
		DisableCompression: true,
		ReadIdleTimeout:    opts.ReadIdleTimeout,
		PingTimeout:        opts.PingTimeout,
	}
	cc, err := t.NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, errdef.Wrap(errdef.CodeTransport, err, "start http2 session")
	}
	return cc, nil
}

func handshake(ctx context.Context, raw net.Conn, serverName string, opts Options) (net.Conn, error) {
	cfg, err := tlsconfig.Build(opts.TLS, opts.BaseDir, serverName)
	if err != nil {
		return nil, err
	}
	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "tls handshake with %s", serverName)
	}
	proto := tc.ConnectionState().NegotiatedProtocol
	if err := httpver.RequireH2(httpver.FromALPN(proto), "alpn"); err != nil {
		return nil, err
	}
	return tc, nil
}

func dialer(opts Options) DialFunc {
	if opts.Dial != nil {
		return opts.Dial
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext
}

func hostPort(host, scheme string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	port := "443"
	if scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}
