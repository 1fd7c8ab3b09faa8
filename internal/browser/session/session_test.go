// internal/browser/session/session_test.go
package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/adscope/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// detachedSession is a Session with no browser behind it.
func detachedSession(t *testing.T, state State) *Session {
	s := &Session{logger: zaptest.NewLogger(t), lifecycle: newLifecycle()}
	s.state.Store(int32(state))
	return s
}

func TestSession_OperationsAfterClose(t *testing.T) {
	s := detachedSession(t, StateConnected)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
	assert.Equal(t, StateClosed, s.State())

	ctx := context.Background()
	assert.ErrorIs(t, s.Evaluate(ctx, "1", nil), ErrClosed)
	_, err := s.Navigate(ctx, "https://example.com", 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Screenshot(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Reconnect(ctx), ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
	assert.False(t, s.Alive())
}

func TestSession_DisconnectedOperations(t *testing.T) {
	s := detachedSession(t, StateDisconnected)
	ctx := context.Background()

	assert.ErrorIs(t, s.DispatchMouseEvent(ctx, MouseEvent{Type: MouseMoved}), ErrConnectionLost)
	assert.ErrorIs(t, s.SendKeys(ctx, "abc"), ErrConnectionLost)
	assert.ErrorIs(t, s.Ping(ctx), ErrConnectionLost)
	assert.ErrorIs(t, s.Reconnect(ctx), ErrConnectionLost, "no process to reconnect to")
	_, err := s.ResponseBody(ctx, "42")
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestSession_Classify(t *testing.T) {
	ctx := context.Background()

	t.Run("transport failures mark the session disconnected", func(t *testing.T) {
		s := detachedSession(t, StateConnected)
		err := s.classify(ctx, errors.New("websocket: close 1006 (abnormal closure)"))
		assert.ErrorIs(t, err, ErrConnectionLost)
		assert.Equal(t, StateDisconnected, s.State())
	})

	t.Run("protocol errors pass through", func(t *testing.T) {
		s := detachedSession(t, StateConnected)
		original := errors.New("Cannot find context with specified id")
		assert.Same(t, original, s.classify(ctx, original))
		assert.Equal(t, StateConnected, s.State())
	})

	t.Run("caller deadline wins", func(t *testing.T) {
		s := detachedSession(t, StateConnected)
		expired, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, s.classify(expired, errors.New("websocket: closed")), context.Canceled)
	})
}

func TestSession_InspectorEventsMarkDisconnected(t *testing.T) {
	tests := []struct {
		name   string
		event  interface{}
		reason string
	}{
		{"detached", &inspector.EventDetached{Reason: "target_closed"}, "inspector detached: target_closed"},
		{"crashed", &inspector.EventTargetCrashed{}, "target crashed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			s := detachedSession(t, StateConnected)
			s.logger = zap.New(core)

			s.onEvent(tt.event)
			assert.Equal(t, StateDisconnected, s.State())
			entries := logs.FilterMessage("Browser connection lost.").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.reason, entries[0].ContextMap()["reason"])
		})
	}
}

func TestSession_Sleep(t *testing.T) {
	s := detachedSession(t, StateConnected)
	require.NoError(t, s.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Sleep(ctx, time.Hour), context.Canceled)
}

func TestErrors(t *testing.T) {
	cause := errors.New("exec: not found")
	launchErr := &LaunchError{Executable: "/usr/bin/chromium", Stage: "start", Err: cause}
	assert.ErrorIs(t, launchErr, cause)
	assert.Contains(t, launchErr.Error(), "/usr/bin/chromium")
	assert.NotContains(t, (&LaunchError{Stage: "resolve", Err: cause}).Error(), "()")

	evalErr := newEvaluationError("(function detectAds(sig) {\n  return [];\n})({})", &runtime.ExceptionDetails{
		Text:         "Uncaught",
		LineNumber:   3,
		ColumnNumber: 7,
		Exception:    &runtime.RemoteObject{Description: "TypeError: x is undefined"},
	})
	assert.Equal(t, "(function detectAds(sig) {", evalErr.Expression)
	assert.Equal(t, "TypeError: x is undefined", evalErr.Message)
	assert.Contains(t, evalErr.Error(), "3:7")

	assert.Len(t, expressionLabel(strings.Repeat("x", 200)), 67)
	assert.True(t, looksLikeConnectionError(errors.New("read tcp: use of closed network connection")))
	assert.False(t, looksLikeConnectionError(errors.New("SyntaxError")))
	assert.False(t, looksLikeConnectionError(nil))
}

func TestDecodeRemote(t *testing.T) {
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, decodeRemote(&runtime.RemoteObject{Type: runtime.TypeObject, Value: []byte(`{"count":4}`)}, &out))
	assert.Equal(t, 4, out.Count)

	out.Count = 9
	require.NoError(t, decodeRemote(&runtime.RemoteObject{Type: runtime.TypeUndefined}, &out))
	assert.Equal(t, 9, out.Count, "undefined leaves out untouched")

	require.NoError(t, decodeRemote(nil, &out))
	require.NoError(t, decodeRemote(&runtime.RemoteObject{Value: []byte(`1`)}, nil))
	assert.Error(t, decodeRemote(&runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(`"text"`)}, &out))
}

func TestBlockPatterns(t *testing.T) {
	assert.Nil(t, blockPatterns(Options{}))

	patterns := blockPatterns(Options{BlockResources: true})
	require.Len(t, patterns, 2)
	assert.Equal(t, network.ResourceTypeFont, patterns[0].ResourceType)
	assert.Equal(t, network.ResourceTypeMedia, patterns[1].ResourceType)
	assert.Equal(t, fetch.RequestStageRequest, patterns[0].RequestStage)

	patterns = blockPatterns(Options{BlockResources: true, BlockImages: true})
	require.Len(t, patterns, 3)
	assert.Equal(t, network.ResourceTypeImage, patterns[2].ResourceType)
}

func TestInitiatorOf(t *testing.T) {
	assert.Empty(t, initiatorOf(nil))
	assert.Equal(t, "https://cdn.ads.example/tag.js", initiatorOf(&network.Initiator{Type: network.InitiatorTypeScript, URL: "https://cdn.ads.example/tag.js"}))
	assert.Equal(t, "https://pub.example/app.js", initiatorOf(&network.Initiator{
		Type:  network.InitiatorTypeScript,
		Stack: &runtime.StackTrace{CallFrames: []*runtime.CallFrame{{URL: ""}, {URL: "https://pub.example/app.js"}}},
	}))
	assert.Equal(t, "parser", initiatorOf(&network.Initiator{Type: network.InitiatorTypeParser}))
}

func TestDevtoolsClient_FirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":"SW1","type":"service_worker","url":"https://pub.example/sw.js"},
			{"id":"P1","type":"page","url":"about:blank"}
		]`)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	client := newDevtoolsClient()
	defer client.client.CloseIdleConnections()
	id, err := client.firstPage(context.Background(), u.Host)
	require.NoError(t, err)
	assert.Equal(t, "P1", string(id))

	_, err = pickPageTarget([]targetInfo{{ID: "W", Type: "worker"}})
	assert.ErrorIs(t, err, errNoPageTarget)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.NetworkCfg.Proxy = config.ProxyConfig{Enabled: true, Address: "proxy.local:3128", Username: "u", Password: "p"}
	cfg.SetNetworkBlockResources(true)

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.Browser().WindowWidth, opts.WindowWidth)
	assert.True(t, opts.BlockResources)
	assert.Equal(t, cfg.Stealth().Profile.UserAgent, opts.UserAgent)
	require.NotNil(t, opts.Proxy)
	assert.Equal(t, "proxy.local:3128", opts.Proxy.Address)

	cfg.StealthCfg.Enabled = false
	assert.Empty(t, OptionsFromConfig(cfg).UserAgent)
}
