// browser/network/forwarder.go
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// Chrome cannot take proxy credentials on the command line, so an
// authenticated upstream is reached through a loopback Forwarder that adds
// Proxy-Authorization to everything it relays.

// UpstreamProxy describes the proxy the browser's traffic is chained to.
type UpstreamProxy struct {
	// Address is "host:port" or a full "http://host:port" URL.
	Address  string
	Username string
	Password string
}

// URL normalizes the upstream into a URL carrying its credentials.
func (u UpstreamProxy) URL() (*url.URL, error) {
	raw := strings.TrimSpace(u.Address)
	if raw == "" {
		return nil, errors.New("upstream proxy address is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream proxy address %q: %w", u.Address, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid upstream proxy address %q: missing host", u.Address)
	}
	if u.Username != "" {
		parsed.User = url.UserPassword(u.Username, u.Password)
	}
	return parsed, nil
}

// Forwarder is a loopback forward proxy chained to an upstream proxy.
type Forwarder struct {
	proxy    *goproxy.ProxyHttpServer
	server   *http.Server
	listener net.Listener
	upstream *url.URL
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewForwarder configures, but does not start, a Forwarder.
func NewForwarder(upstream UpstreamProxy, logger *zap.Logger) (*Forwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	upstreamURL, err := upstream.URL()
	if err != nil {
		return nil, err
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = false

	dialerConfig := NewDialerConfig()
	dialerConfig.ProxyURL = upstreamURL
	proxy.Tr = NewHTTPTransport(&ClientConfig{DialerConfig: dialerConfig, ProxyURL: upstreamURL})
	// CONNECT tunnels are opened through the upstream with the same credentials.
	proxy.ConnectDial = func(network, addr string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultDialTimeout)
		defer cancel()
		return DialTCPContext(ctx, network, addr, dialerConfig)
	}

	f := &Forwarder{
		proxy:    proxy,
		upstream: upstreamURL,
		logger:   logger.Named("forwarder"),
	}
	proxy.OnResponse().DoFunc(f.handleResponse)
	return f, nil
}

// Start listens on an ephemeral loopback port and serves in the background.
func (f *Forwarder) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("forwarder listen: %w", err)
	}
	f.listener = listener
	f.server = &http.Server{
		Handler:           f.proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := f.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Warn("Forwarder stopped serving.", zap.Error(err))
		}
	}()
	f.logger.Info("Proxy forwarder started.",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", f.upstream.Host))
	return nil
}

// Addr is the "host:port" the browser should use as its proxy server.
func (f *Forwarder) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Close shuts the listener down and drops open tunnels. Safe to call repeatedly.
func (f *Forwarder) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		if f.server == nil {
			return
		}
		if err := f.server.Shutdown(ctx); err != nil {
			f.closeErr = f.server.Close()
		}
	})
	return f.closeErr
}

// handleResponse turns upstream failures into gateway errors the browser can report.
func (f *Forwarder) handleResponse(r *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if r != nil || ctx == nil || ctx.Req == nil {
		return r
	}
	msg := "unknown error"
	if ctx.Error != nil {
		msg = ctx.Error.Error()
	}
	f.logger.Debug("Upstream request failed.", zap.String("url", ctx.Req.URL.String()), zap.String("error", msg))

	status := http.StatusBadGateway
	var netErr net.Error
	if errors.As(ctx.Error, &netErr) && netErr.Timeout() {
		status = http.StatusGatewayTimeout
	}
	return goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, status, "upstream proxy error: "+msg)
}
