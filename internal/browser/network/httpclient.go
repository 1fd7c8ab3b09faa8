// browser/network/httpclient.go
package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	json "github.com/json-iterator/go"
)

const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second

	// maxJSONBody caps control-plane responses.
	maxJSONBody = 4 << 20
)

// ClientConfig holds the configuration for auxiliary HTTP clients: the
// DevTools discovery endpoint and out-of-browser ad tag lookups.
type ClientConfig struct {
	RequestTimeout time.Duration
	DialerConfig   *DialerConfig
	// ProxyURL, when set, routes plain HTTP requests through a forward proxy.
	ProxyURL *url.URL
}

// NewClientConfig returns a configuration with conservative timeouts and no proxy.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout: DefaultRequestTimeout,
		DialerConfig:   NewDialerConfig(),
	}
}

// NewHTTPTransport creates the base transport. Environment proxy variables
// are ignored so local DevTools traffic never leaves the host.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewClientConfig()
	}
	dialerConfig := config.DialerConfig.Clone()
	// http.Transport performs the proxy handshake itself when Proxy is set.
	dialerConfig.ProxyURL = nil

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return DialTCPContext(ctx, network, addr, dialerConfig)
		},
		TLSClientConfig:       dialerConfig.TLSConfig,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	}
	return transport
}

// NewClient creates the configured http.Client.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewClientConfig()
	}
	return &http.Client{
		Transport: NewHTTPTransport(config),
		Timeout:   config.RequestTimeout,
	}
}

// GetJSON issues a GET and decodes a 200 response body into out.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	body, err := Get(ctx, client, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Get issues a GET and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
}
