package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/adscope/internal/browser/session"
)

// fakeBodies serves canned response bodies keyed by request ID.
type fakeBodies struct {
	mu     sync.Mutex
	bodies map[string][]byte
	err    error
	calls  []string
}

func (f *fakeBodies) ResponseBody(_ context.Context, requestID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, requestID)
	if f.err != nil {
		return nil, f.err
	}
	return f.bodies[requestID], nil
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func started(id, url string, offset time.Duration) session.NetworkEvent {
	return session.NetworkEvent{
		Kind:         session.RequestStarted,
		RequestID:    id,
		URL:          url,
		Method:       "GET",
		ResourceType: "Script",
		Timestamp:    epoch.Add(offset),
	}
}

func vastExchange(id, url string) []session.NetworkEvent {
	return []session.NetworkEvent{
		started(id, url, 0),
		{Kind: session.ResponseReceived, RequestID: id, URL: url, MimeType: "application/xml", Status: 200, Timestamp: epoch},
		{Kind: session.RequestFinished, RequestID: id, Timestamp: epoch},
	}
}

const sampleVAST = `<?xml version="1.0" encoding="UTF-8"?>
<VAST version="4.1">
  <Ad id="1">
    <InLine>
      <Impression><![CDATA[https://t.example/imp]]></Impression>
      <Impression><![CDATA[https://t2.example/imp]]></Impression>
      <Creatives><Creative><Linear>
        <MediaFiles>
          <MediaFile type="video/mp4"><![CDATA[https://cdn.example/a.mp4]]></MediaFile>
          <MediaFile type="video/webm"><![CDATA[https://cdn.example/a.webm]]></MediaFile>
        </MediaFiles>
      </Linear></Creative></Creatives>
    </InLine>
  </Ad>
  <Ad id="2">
    <Wrapper>
      <VASTAdTagURI><![CDATA[https://ads.example/next.xml]]></VASTAdTagURI>
      <Impression><![CDATA[https://t.example/wrap]]></Impression>
    </Wrapper>
  </Ad>
</VAST>`

const sampleVMAP = `<?xml version="1.0" encoding="UTF-8"?>
<vmap:VMAP xmlns:vmap="http://www.iab.net/videosuite/vmap" version="1.0">
  <vmap:AdBreak timeOffset="start" breakType="linear" breakId="preroll"/>
  <vmap:AdBreak timeOffset="00:05:00.000" breakType="linear" breakId="midroll"/>
</vmap:VMAP>`
