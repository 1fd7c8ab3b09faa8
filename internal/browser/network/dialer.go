package network

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DialerConfig controls how the forwarder and the auxiliary clients reach
// the network.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// TLSConfig is used when the proxy itself is reached over https.
	TLSConfig *tls.Config
	// ProxyURL tunnels every connection through an HTTP CONNECT proxy.
	// Credentials in the URL are sent as Proxy-Authorization.
	ProxyURL *url.URL
}

// NewDialerConfig returns direct dialing with default timeouts.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Clone returns a copy that shares nothing mutable with c. A nil receiver
// yields the defaults.
func (c *DialerConfig) Clone() *DialerConfig {
	if c == nil {
		return NewDialerConfig()
	}
	out := *c
	if c.TLSConfig != nil {
		out.TLSConfig = c.TLSConfig.Clone()
	}
	if c.ProxyURL != nil {
		u := *c.ProxyURL
		out.ProxyURL = &u
	}
	return &out
}

func (c *DialerConfig) netDialer() *net.Dialer {
	return &net.Dialer{Timeout: c.Timeout, KeepAlive: c.KeepAlive}
}

// DialTCPContext connects to address, through the configured proxy when
// there is one. It fits http.Transport.DialContext and goproxy's ConnectDial.
func DialTCPContext(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}
	if config.ProxyURL == nil {
		return dial(ctx, config.netDialer(), network, address)
	}

	proxy := config.ProxyURL
	conn, err := dialProxy(ctx, network, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy %s: %w", proxy.Host, err)
	}
	tunnel, err := connect(ctx, conn, address, BasicProxyAuth(proxy))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tunnel, nil
}

func dial(ctx context.Context, d *net.Dialer, network, address string) (net.Conn, error) {
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// dialProxy opens the connection to the proxy itself, over TLS for https
// proxies.
func dialProxy(ctx context.Context, network string, config *DialerConfig) (net.Conn, error) {
	proxy := config.ProxyURL
	switch proxy.Scheme {
	case "", "http":
		return dial(ctx, config.netDialer(), network, proxy.Host)
	case "https":
		raw, err := dial(ctx, config.netDialer(), network, proxy.Host)
		if err != nil {
			return nil, err
		}
		return clientTLS(ctx, raw, proxy.Hostname(), config.TLSConfig)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s (only http/https supported)", proxy.Scheme)
	}
}

func clientTLS(ctx context.Context, raw net.Conn, host string, base *tls.Config) (net.Conn, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if base != nil {
		cfg = base.Clone()
	}
	if cfg.ServerName == "" && net.ParseIP(host) == nil {
		cfg.ServerName = host
	}

	hsCtx, cancel := context.WithTimeout(ctx, DefaultTLSHandshakeTimeout)
	defer cancel()
	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}
	return conn, nil
}

// connect asks the proxy for a tunnel to target. Bytes the target sends
// right after the handshake may already sit in the reader, so the returned
// conn keeps reading through it.
func connect(ctx context.Context, conn net.Conn, target, auth string) (net.Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: http.Header{},
	}
	if auth != "" {
		req.Header.Set("Proxy-Authorization", auth)
	}
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy refused CONNECT to %s: %s", target, resp.Status)
	}
	return &tunnelConn{Conn: conn, r: br}, nil
}

// tunnelConn reads through the handshake's buffered reader.
type tunnelConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *tunnelConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// BasicProxyAuth returns the Proxy-Authorization value for the credentials in
// proxyURL, or "" when it carries none.
func BasicProxyAuth(proxyURL *url.URL) string {
	if proxyURL == nil || proxyURL.User == nil {
		return ""
	}
	password, _ := proxyURL.User.Password()
	token := base64.StdEncoding.EncodeToString([]byte(proxyURL.User.Username() + ":" + password))
	return "Basic " + token
}
