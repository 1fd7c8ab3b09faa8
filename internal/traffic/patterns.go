package traffic

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/xkilldash9x/adscope/internal/browser/session"
)

// headerBiddingMarkers are lowercase URL substrings typical of client-side
// auctions and the wrappers that run them.
var headerBiddingMarkers = []string{
	"prebid",
	"pbjs",
	"/hb/",
	"/hb?",
	"hb_bidder",
	"bidder",
	"openrtb",
	"/auction",
	"/openwrap/",
	"headerbid",
	"bid_request",
	"/bidrequest",
	"/translator?",
	"/cygnus?",
	"/tlx/header",
}

// videoMarkers are lowercase URL substrings typical of VAST/VMAP and video
// ad SDK traffic.
var videoMarkers = []string{
	"vast",
	"vmap",
	"ima3",
	"imasdk",
	"/video/ads",
	"adtagurl",
	"vpaid",
	"output=xml_vast",
	"/videoads",
	"ad_type=video",
}

// Hosts outside the ad taxonomy only count when a path or query token is
// exactly one of these names.
var (
	firstPartyHeaderBidding = map[string]bool{
		"prebid":        true,
		"pbjs":          true,
		"openrtb":       true,
		"headerbid":     true,
		"headerbidding": true,
	}
	firstPartyVideo = map[string]bool{
		"vast":   true,
		"vmap":   true,
		"vpaid":  true,
		"ima3":   true,
		"imasdk": true,
	}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// hasToken splits the path and query of rawURL on every non-alphanumeric rune
// and reports whether any piece is in tokens.
func hasToken(rawURL string, tokens map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.EscapedPath() + "?" + u.RawQuery)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if tokens[f] {
			return true
		}
	}
	return false
}

// Request is one raw event after classification.
type Request struct {
	session.NetworkEvent
	Host          string
	RootDomain    string
	IsAd          bool
	AdDomain      string
	Category      Category
	HeaderBidding bool
	Video         bool
}

// Classify tags a raw event with ad-network membership and the URL
// heuristics. Ad hosts are matched on substrings; other hosts need a whole
// token. It is pure and safe for concurrent use.
func Classify(ev session.NetworkEvent) Request {
	host := hostOf(ev.URL)
	r := Request{
		NetworkEvent: ev,
		Host:         host,
		RootDomain:   RootDomain(host),
	}
	if domain, cat, ok := matchAdDomain(host); ok {
		r.IsAd = true
		r.AdDomain = domain
		r.Category = cat
	}

	if !r.IsAd {
		r.HeaderBidding = hasToken(ev.URL, firstPartyHeaderBidding)
		r.Video = hasToken(ev.URL, firstPartyVideo)
		return r
	}
	lower := strings.ToLower(ev.URL)
	r.HeaderBidding = containsAny(lower, headerBiddingMarkers)
	r.Video = r.Category == CategoryVideo || containsAny(lower, videoMarkers)
	return r
}
