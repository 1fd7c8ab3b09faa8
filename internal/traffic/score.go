package traffic

// Score weights. The total is clamped to 100.
const (
	volumeHighThreshold   = 100
	volumeMediumThreshold = 50
	volumeLowThreshold    = 25

	volumeHighPoints   = 35
	volumeMediumPoints = 25
	volumeLowPoints    = 15

	refreshHighPoints   = 15
	refreshMediumPoints = 8
	refreshCap          = 30

	headerBiddingThreshold = 10
	headerBiddingPoints    = 15

	videoThreshold = 5
	videoPoints    = 10

	fragmentedThreshold = 15
	fragmentedPoints    = 10
)

// scoreInputs is the slice of an analysis the risk score depends on.
type scoreInputs struct {
	adRequests    int
	patterns      []RefreshPattern
	headerBidding int
	videoCalls    int
	adRoots       int
}

// riskScore is 0 without ad requests; first-party markers alone never score.
func riskScore(in scoreInputs) int {
	if in.adRequests == 0 {
		return 0
	}
	score := 0

	switch {
	case in.adRequests >= volumeHighThreshold:
		score += volumeHighPoints
	case in.adRequests >= volumeMediumThreshold:
		score += volumeMediumPoints
	case in.adRequests >= volumeLowThreshold:
		score += volumeLowPoints
	}

	refresh := 0
	for _, p := range in.patterns {
		if !p.Suspicious {
			continue
		}
		if p.Severity == SeverityHigh {
			refresh += refreshHighPoints
		} else {
			refresh += refreshMediumPoints
		}
	}
	if refresh > refreshCap {
		refresh = refreshCap
	}
	score += refresh

	if in.headerBidding > headerBiddingThreshold {
		score += headerBiddingPoints
	}
	if in.videoCalls > videoThreshold {
		score += videoPoints
	}
	if in.adRoots > fragmentedThreshold {
		score += fragmentedPoints
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Pattern names reported by NetworkAnalysis.Patterns.
const (
	PatternAutoRefresh            = "auto-refresh"
	PatternExcessiveHeaderBidding = "excessive-header-bidding"
	PatternExcessiveVideoAds      = "excessive-video-ads"
	PatternFragmentedAdStack      = "fragmented-ad-stack"
)

// Patterns lists the named traffic patterns the analysis exhibits, using the
// same thresholds as the risk score. An analysis without ad requests has none.
func (a NetworkAnalysis) Patterns() []string {
	if a.AdRequests == 0 {
		return nil
	}
	var out []string
	if a.HasAutoRefresh {
		out = append(out, PatternAutoRefresh)
	}
	if a.HeaderBiddingEvents > headerBiddingThreshold {
		out = append(out, PatternExcessiveHeaderBidding)
	}
	if a.VideoAdCalls > videoThreshold {
		out = append(out, PatternExcessiveVideoAds)
	}
	if len(a.AdNetworks) > fragmentedThreshold {
		out = append(out, PatternFragmentedAdStack)
	}
	return out
}
