// internal/traffic/classifier.go

// Package traffic classifies the network traffic of one crawl and derives
// ad-refresh patterns and a network risk score from it.
package traffic

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/adscope/internal/browser/session"
)

var errNotVAST = errors.New("document is neither VAST nor VMAP")

// Options tunes a Classifier.
type Options struct {
	// Bodies enables VAST inspection. Nil disables it.
	Bodies BodySource
	// VASTFetchPerSecond throttles body fetches. Zero or less means 2/s.
	VASTFetchPerSecond float64
	// VASTTimeout bounds one body fetch.
	VASTTimeout time.Duration
}

// NetworkAnalysis is the traffic summary of one crawl.
type NetworkAnalysis struct {
	TotalRequests       int              `json:"totalRequests"`
	AdRequests          int              `json:"adRequests"`
	AdNetworks          []string         `json:"adNetworks"`
	Categories          map[Category]int `json:"categories"`
	HeaderBiddingEvents int              `json:"headerBiddingEvents"`
	VideoAdCalls        int              `json:"videoAdCalls"`
	SocketOpens         int              `json:"socketOpens"`
	RefreshPatterns     []RefreshPattern `json:"refreshPatterns"`
	HasAutoRefresh      bool             `json:"hasAutoRefresh"`
	VAST                VASTSummary      `json:"vast"`
	NetworkRiskScore    int              `json:"networkRiskScore"`
}

// Classifier accumulates the classified traffic of a single crawl. It is
// owned by the crawl and discarded with Reset when the crawl ends.
type Classifier struct {
	logger  *zap.Logger
	bodies  BodySource
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time

	mu            sync.Mutex
	log           []Request
	adRequests    []Request
	headerBidding []Request
	videoCalls    []Request
	socketOpens   []Request
	adTimes       map[string][]time.Time
	reloads       []time.Time
	pendingVAST   map[string]string
	vast          VASTSummary
}

// New creates an empty classifier.
func New(logger *zap.Logger, opts Options) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	perSecond := opts.VASTFetchPerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	timeout := opts.VASTTimeout
	if timeout <= 0 {
		timeout = defaultVASTTimeout
	}
	return &Classifier{
		logger:      logger.Named("traffic"),
		bodies:      opts.Bodies,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout:     timeout,
		now:         time.Now,
		adTimes:     make(map[string][]time.Time),
		pendingVAST: make(map[string]string),
	}
}

// Run consumes events until the channel is closed, which returns nil, or ctx
// ends, which returns ctx.Err().
func (c *Classifier) Run(ctx context.Context, events <-chan session.NetworkEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Record(ctx, ev)
		}
	}
}

// Record classifies one event and appends it to the logs. Finished VAST
// responses are inspected synchronously, subject to the fetch limiter.
func (c *Classifier) Record(ctx context.Context, ev session.NetworkEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}

	var inspectID, inspectURL string
	c.mu.Lock()
	switch ev.Kind {
	case session.RequestStarted:
		c.recordRequest(Classify(ev))
	case session.WebSocketOpened:
		c.socketOpens = append(c.socketOpens, Classify(ev))
	case session.ResponseReceived:
		if isXMLResponse(ev.MimeType) && Classify(ev).Video {
			c.pendingVAST[ev.RequestID] = ev.URL
			c.vast.Responses++
		}
	case session.RequestFinished:
		if u, ok := c.pendingVAST[ev.RequestID]; ok {
			delete(c.pendingVAST, ev.RequestID)
			inspectID, inspectURL = ev.RequestID, u
		}
	case session.RequestFailed:
		delete(c.pendingVAST, ev.RequestID)
	}
	c.mu.Unlock()

	if inspectID != "" {
		c.inspect(ctx, inspectID, inspectURL)
	}
}

// recordRequest must be called with mu held.
func (c *Classifier) recordRequest(r Request) {
	c.log = append(c.log, r)
	if r.IsAd {
		c.adRequests = append(c.adRequests, r)
		c.adTimes[r.AdDomain] = append(c.adTimes[r.AdDomain], r.Timestamp)
	}
	if r.HeaderBidding {
		c.headerBidding = append(c.headerBidding, r)
	}
	if r.Video {
		c.videoCalls = append(c.videoCalls, r)
	}
}

func (c *Classifier) inspect(ctx context.Context, requestID, url string) {
	if c.bodies == nil || !c.limiter.Allow() {
		c.mu.Lock()
		c.vast.Skipped++
		c.mu.Unlock()
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	body, err := c.bodies.ResponseBody(fetchCtx, requestID)
	var doc vastDocument
	if err == nil {
		doc, err = inspectVAST(body)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.vast.Errors++
		c.logger.Debug("VAST inspection failed.", zap.String("url", url), zap.Error(err))
		return
	}
	c.vast.add(doc)
}

// MarkReload records that the page is being loaded again by the crawler
// itself. Ad requests on either side of the mark are never paired into a
// refresh interval.
func (c *Classifier) MarkReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloads = append(c.reloads, c.now())
}

// RefreshPatterns derives the per-domain cadence from the ad request log.
func (c *Classifier) RefreshPatterns() []RefreshPattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	return refreshPatterns(c.adTimes, c.reloads)
}

// RiskScore returns the 0-100 network risk score.
func (c *Classifier) RiskScore() int {
	return c.Analysis().NetworkRiskScore
}

// Analysis summarizes everything recorded so far.
func (c *Classifier) Analysis() NetworkAnalysis {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := NetworkAnalysis{
		TotalRequests:       len(c.log),
		AdRequests:          len(c.adRequests),
		AdNetworks:          []string{},
		Categories:          make(map[Category]int),
		HeaderBiddingEvents: len(c.headerBidding),
		VideoAdCalls:        len(c.videoCalls),
		SocketOpens:         len(c.socketOpens),
		RefreshPatterns:     refreshPatterns(c.adTimes, c.reloads),
		VAST:                c.vast,
	}
	out.VAST.Versions = append([]string(nil), c.vast.Versions...)

	roots := make(map[string]struct{})
	for _, r := range c.adRequests {
		out.Categories[r.Category]++
		roots[RootDomain(r.AdDomain)] = struct{}{}
	}
	for root := range roots {
		out.AdNetworks = append(out.AdNetworks, root)
	}
	sort.Strings(out.AdNetworks)

	for _, p := range out.RefreshPatterns {
		if p.Suspicious {
			out.HasAutoRefresh = true
			break
		}
	}

	out.NetworkRiskScore = riskScore(scoreInputs{
		adRequests:    out.AdRequests,
		patterns:      out.RefreshPatterns,
		headerBidding: out.HeaderBiddingEvents,
		videoCalls:    out.VideoAdCalls,
		adRoots:       len(roots),
	})
	return out
}

// Reset discards every log.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
	c.adRequests = nil
	c.headerBidding = nil
	c.videoCalls = nil
	c.socketOpens = nil
	c.adTimes = make(map[string][]time.Time)
	c.reloads = nil
	c.pendingVAST = make(map[string]string)
	c.vast = VASTSummary{}
}
