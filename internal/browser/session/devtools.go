// internal/browser/session/devtools.go
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/chromedp/cdproto/target"

	proxynet "github.com/xkilldash9x/adscope/internal/browser/network"
)

// targetInfo is one entry of the DevTools /json/list document.
type targetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// devtoolsClient talks to the browser's DevTools HTTP endpoint.
type devtoolsClient struct {
	client *http.Client
}

func newDevtoolsClient() devtoolsClient {
	cfg := proxynet.NewClientConfig()
	cfg.RequestTimeout = pingTimeout
	return devtoolsClient{client: proxynet.NewClient(cfg)}
}

var errNoPageTarget = errors.New("no page target")

// firstPage returns the ID of the first page target listed by host.
func (d devtoolsClient) firstPage(ctx context.Context, host string) (target.ID, error) {
	var targets []targetInfo
	if err := proxynet.GetJSON(ctx, d.client, "http://"+host+"/json/list", &targets); err != nil {
		return "", err
	}
	return pickPageTarget(targets)
}

func pickPageTarget(targets []targetInfo) (target.ID, error) {
	for _, t := range targets {
		if t.Type == "page" && t.ID != "" {
			return target.ID(t.ID), nil
		}
	}
	return "", errNoPageTarget
}
