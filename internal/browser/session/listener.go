// internal/browser/session/listener.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// enableDomains are the actions run on every fresh connection.
func (s *Session) enableDomains() []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		page.Enable(),
		runtime.Enable(),
	}
	if patterns := blockPatterns(s.opts); len(patterns) > 0 {
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}
	return actions
}

// blockPatterns lists the resource types failed at the request stage.
func blockPatterns(opts Options) []*fetch.RequestPattern {
	if !opts.BlockResources {
		return nil
	}
	types := []network.ResourceType{network.ResourceTypeFont, network.ResourceTypeMedia}
	if opts.BlockImages {
		types = append(types, network.ResourceTypeImage)
	}
	patterns := make([]*fetch.RequestPattern, 0, len(types))
	for _, rt := range types {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// onEvent runs on chromedp's reader goroutine and must never block.
func (s *Session) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		s.events.publish(NetworkEvent{
			Kind:         RequestStarted,
			RequestID:    string(e.RequestID),
			URL:          e.Request.URL,
			Method:       e.Request.Method,
			ResourceType: string(e.Type),
			Initiator:    initiatorOf(e.Initiator),
			Timestamp:    eventTime(e.WallTime),
		})
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		s.events.publish(NetworkEvent{
			Kind:         ResponseReceived,
			RequestID:    string(e.RequestID),
			URL:          e.Response.URL,
			ResourceType: string(e.Type),
			MimeType:     e.Response.MimeType,
			Status:       e.Response.Status,
			Timestamp:    time.Now(),
		})
	case *network.EventLoadingFinished:
		s.events.publish(NetworkEvent{Kind: RequestFinished, RequestID: string(e.RequestID), Timestamp: time.Now()})
	case *network.EventLoadingFailed:
		s.events.publish(NetworkEvent{Kind: RequestFailed, RequestID: string(e.RequestID), ResourceType: string(e.Type), Timestamp: time.Now()})
	case *network.EventWebSocketCreated:
		s.events.publish(NetworkEvent{
			Kind:      WebSocketOpened,
			RequestID: string(e.RequestID),
			URL:       e.URL,
			Initiator: initiatorOf(e.Initiator),
			Timestamp: time.Now(),
		})
	case *page.EventLoadEventFired:
		s.lifecycle.signal("load")
	case *page.EventDomContentEventFired:
		s.lifecycle.signal("domcontentloaded")
	case *page.EventFrameStoppedLoading:
		s.lifecycle.signal("frame_stopped_loading")
	case *fetch.EventRequestPaused:
		go s.failPaused(e.RequestID)
	case *inspector.EventDetached:
		s.markDisconnected("inspector detached: " + string(e.Reason))
	case *inspector.EventTargetCrashed:
		s.markDisconnected("target crashed")
	}
}

func (s *Session) failPaused(id fetch.RequestID) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := s.runActions(ctx, fetch.FailRequest(id, network.ErrorReasonBlockedByClient)); err != nil {
		s.logger.Debug("Could not fail blocked request.", zap.String("request_id", string(id)), zap.Error(err))
	}
}

func initiatorOf(in *network.Initiator) string {
	if in == nil {
		return ""
	}
	if in.URL != "" {
		return in.URL
	}
	if in.Stack != nil {
		for _, frame := range in.Stack.CallFrames {
			if frame != nil && frame.URL != "" {
				return frame.URL
			}
		}
	}
	return string(in.Type)
}

func eventTime(wall *cdp.TimeSinceEpoch) time.Time {
	if wall == nil {
		return time.Now()
	}
	if t := wall.Time(); !t.IsZero() {
		return t
	}
	return time.Now()
}

// lifecycle fans page load signals out to navigation waiters.
type lifecycle struct {
	mu      sync.Mutex
	waiters map[int]chan string
	next    int
}

func newLifecycle() *lifecycle {
	return &lifecycle{waiters: make(map[int]chan string)}
}

// wait registers a waiter. Call release once done with it.
func (l *lifecycle) wait() (<-chan string, func()) {
	ch := make(chan string, 1)
	l.mu.Lock()
	id := l.next
	l.next++
	l.waiters[id] = ch
	l.mu.Unlock()
	return ch, func() {
		l.mu.Lock()
		delete(l.waiters, id)
		l.mu.Unlock()
	}
}

func (l *lifecycle) signal(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.waiters {
		select {
		case ch <- event:
		default:
		}
	}
}
