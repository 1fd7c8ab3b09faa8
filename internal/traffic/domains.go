package traffic

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Category groups ad-related domains by the role they play in the stack.
type Category string

const (
	CategoryExchange      Category = "exchange"
	CategoryNative        Category = "native"
	CategoryVerification  Category = "verification"
	CategoryVideo         Category = "video"
	CategoryHeaderBidding Category = "header-bidding"
	CategoryTracking      Category = "tracking"
)

// adDomains is the curated list, keyed by registrable domain or by a more
// specific host where the parent domain also serves non-ad content.
var adDomains = map[string]Category{
	// Exchanges and SSPs.
	"doubleclick.net":         CategoryExchange,
	"googlesyndication.com":   CategoryExchange,
	"googleadservices.com":    CategoryExchange,
	"googletagservices.com":   CategoryExchange,
	"adservice.google.com":    CategoryExchange,
	"adnxs.com":               CategoryExchange,
	"rubiconproject.com":      CategoryExchange,
	"pubmatic.com":            CategoryExchange,
	"openx.net":               CategoryExchange,
	"criteo.com":              CategoryExchange,
	"criteo.net":              CategoryExchange,
	"casalemedia.com":         CategoryExchange,
	"indexww.com":             CategoryExchange,
	"3lift.com":               CategoryExchange,
	"triplelift.com":          CategoryExchange,
	"sovrn.com":               CategoryExchange,
	"lijit.com":               CategoryExchange,
	"sharethrough.com":        CategoryExchange,
	"yieldmo.com":             CategoryExchange,
	"gumgum.com":              CategoryExchange,
	"media.net":               CategoryExchange,
	"amazon-adsystem.com":     CategoryExchange,
	"adsrvr.org":              CategoryExchange,
	"smartadserver.com":       CategoryExchange,
	"teads.tv":                CategoryExchange,
	"33across.com":            CategoryExchange,
	"onetag-sys.com":          CategoryExchange,
	"adform.net":              CategoryExchange,
	"bidswitch.net":           CategoryExchange,
	"contextweb.com":          CategoryExchange,
	"emxdgt.com":              CategoryExchange,
	"sonobi.com":              CategoryExchange,
	"ads.yahoo.com":           CategoryExchange,
	"advertising.com":         CategoryExchange,
	"kargo.com":               CategoryExchange,
	"seedtag.com":             CategoryExchange,
	"minutemedia-prebid.com":  CategoryExchange,
	"richaudience.com":        CategoryExchange,
	"improvedigital.com":      CategoryExchange,
	"360yield.com":            CategoryExchange,
	"adkernel.com":            CategoryExchange,
	"e-planning.net":          CategoryExchange,
	"rhythmone.com":           CategoryExchange,
	"unrulymedia.com":         CategoryExchange,
	"smaato.net":              CategoryExchange,
	"inmobi.com":              CategoryExchange,
	"adcolony.com":            CategoryExchange,
	"servedby-buysellads.com": CategoryExchange,

	// Native and content recommendation.
	"taboola.com":    CategoryNative,
	"outbrain.com":   CategoryNative,
	"revcontent.com": CategoryNative,
	"mgid.com":       CategoryNative,
	"contentad.net":  CategoryNative,
	"zergnet.com":    CategoryNative,
	"nativo.com":     CategoryNative,
	"adblade.com":    CategoryNative,
	"dianomi.com":    CategoryNative,

	// Verification and viewability.
	"doubleverify.com":          CategoryVerification,
	"moatads.com":               CategoryVerification,
	"adsafeprotected.com":       CategoryVerification,
	"iasds01.com":               CategoryVerification,
	"integralads.com":           CategoryVerification,
	"confiant-integrations.net": CategoryVerification,
	"adlightning.com":           CategoryVerification,
	"cleanio.com":               CategoryVerification,
	"geoedge.be":                CategoryVerification,

	// Video ad servers.
	"fwmrm.net":             CategoryVideo,
	"spotxchange.com":       CategoryVideo,
	"spotx.tv":              CategoryVideo,
	"springserve.com":       CategoryVideo,
	"innovid.com":           CategoryVideo,
	"connatix.com":          CategoryVideo,
	"primis.tech":           CategoryVideo,
	"aniview.com":           CategoryVideo,
	"vidoomy.com":           CategoryVideo,
	"imasdk.googleapis.com": CategoryVideo,
	"tremorhub.com":         CategoryVideo,
	"lkqd.net":              CategoryVideo,
	"vi.ai":                 CategoryVideo,

	// Header-bidding wrappers and managed monetization.
	"adthrive.com":     CategoryHeaderBidding,
	"mediavine.com":    CategoryHeaderBidding,
	"ezoic.net":        CategoryHeaderBidding,
	"ezojs.com":        CategoryHeaderBidding,
	"freestar.com":     CategoryHeaderBidding,
	"pub.network":      CategoryHeaderBidding,
	"setupad.net":      CategoryHeaderBidding,
	"htlbid.com":       CategoryHeaderBidding,
	"adpushup.com":     CategoryHeaderBidding,
	"raptive.com":      CategoryHeaderBidding,
	"snigelweb.com":    CategoryHeaderBidding,
	"venatusmedia.com": CategoryHeaderBidding,

	// Ad-driven tracking and data management.
	"scorecardresearch.com": CategoryTracking,
	"quantserve.com":        CategoryTracking,
	"krxd.net":              CategoryTracking,
	"bluekai.com":           CategoryTracking,
	"demdex.net":            CategoryTracking,
	"rlcdn.com":             CategoryTracking,
	"adsymptotic.com":       CategoryTracking,
	"crwdcntrl.net":         CategoryTracking,
	"id5-sync.com":          CategoryTracking,
	"liadm.com":             CategoryTracking,
}

// matchAdDomain walks host from most to least specific label and returns
// the first listed domain.
func matchAdDomain(host string) (string, Category, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for candidate := host; candidate != ""; {
		if cat, ok := adDomains[candidate]; ok {
			return candidate, cat, true
		}
		i := strings.IndexByte(candidate, '.')
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
	}
	return "", "", false
}

// RootDomain returns the registrable domain (eTLD+1) of host, or host itself
// when it has none, such as an IP address or a bare suffix.
func RootDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
