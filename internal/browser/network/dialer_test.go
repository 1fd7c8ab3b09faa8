// internal/browser/network/dialer_test.go
package network

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startConnectProxy runs a single-shot CONNECT proxy that answers with status
// and, on success, immediately writes greeting down the tunnel.
func startConnectProxy(t *testing.T, status int, greeting string) (addr string, seen chan *http.Request) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	seen = make(chan *http.Request, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		seen <- req
		resp := &http.Response{StatusCode: status, ProtoMajor: 1, ProtoMinor: 1}
		_ = resp.Write(conn)
		if status == http.StatusOK {
			_, _ = io.WriteString(conn, greeting)
		}
		time.Sleep(100 * time.Millisecond)
	}()
	return listener.Addr().String(), seen
}

func TestDialTCPContext_ViaProxy(t *testing.T) {
	addr, seen := startConnectProxy(t, http.StatusOK, "hello")

	cfg := NewDialerConfig()
	cfg.ProxyURL = &url.URL{Scheme: "http", Host: addr, User: url.UserPassword("user", "pass")}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := DialTCPContext(ctx, "tcp", "ads.example.com:443", cfg)
	require.NoError(t, err)
	defer conn.Close()

	req := <-seen
	assert.Equal(t, http.MethodConnect, req.Method)
	assert.Equal(t, "ads.example.com:443", req.Host)
	assert.Equal(t, "Basic dXNlcjpwYXNz", req.Header.Get("Proxy-Authorization"))

	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestDialTCPContext_ProxyRejects(t *testing.T) {
	addr, _ := startConnectProxy(t, http.StatusProxyAuthRequired, "")

	cfg := NewDialerConfig()
	cfg.ProxyURL = &url.URL{Scheme: "http", Host: addr}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := DialTCPContext(ctx, "tcp", "ads.example.com:443", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "407")
}

func TestDialTCPContext_UnsupportedScheme(t *testing.T) {
	cfg := NewDialerConfig()
	cfg.ProxyURL = &url.URL{Scheme: "socks5", Host: "127.0.0.1:1080"}
	_, err := DialTCPContext(context.Background(), "tcp", "example.com:80", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported proxy scheme")
}

func TestBasicProxyAuth(t *testing.T) {
	assert.Empty(t, BasicProxyAuth(nil))
	assert.Empty(t, BasicProxyAuth(&url.URL{Host: "p:1"}))
	assert.Equal(t, "Basic dXNlcjo=", BasicProxyAuth(&url.URL{Host: "p:1", User: url.User("user")}))
}

func TestDialerConfig_Clone(t *testing.T) {
	original := NewDialerConfig()
	original.ProxyURL = &url.URL{Scheme: "http", Host: "a:1"}

	clone := original.Clone()
	clone.ProxyURL.Host = "b:2"
	clone.TLSConfig.ServerName = "changed"

	assert.Equal(t, "a:1", original.ProxyURL.Host)
	assert.Empty(t, original.TLSConfig.ServerName)

	var nilCfg *DialerConfig
	assert.NotNil(t, nilCfg.Clone())
}
