// internal/traffic/refresh.go
package traffic

import (
	"sort"
	"time"
)

// Severity grades a refresh pattern.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Refresh thresholds, in seconds.
const (
	suspiciousMinInterval = 30.0
	suspiciousAvgInterval = 60.0
	highMinInterval       = 15.0
)

// RefreshPattern is the request cadence of one ad domain.
type RefreshPattern struct {
	Domain      string    `json:"domain"`
	Requests    int       `json:"requests"`
	Intervals   []float64 `json:"intervals"`
	MinInterval float64   `json:"minInterval"`
	AvgInterval float64   `json:"avgInterval"`
	Suspicious  bool      `json:"suspicious"`
	Severity    Severity  `json:"severity"`
}

// refreshPattern derives the pattern for one domain. Gaps that span a reload
// mark are not intervals. It returns false when no interval remains.
func refreshPattern(domain string, stamps, reloads []time.Time) (RefreshPattern, bool) {
	if len(stamps) < 2 {
		return RefreshPattern{}, false
	}
	sorted := make([]time.Time, len(stamps))
	copy(sorted, stamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	p := RefreshPattern{
		Domain:    domain,
		Requests:  len(sorted),
		Intervals: make([]float64, 0, len(sorted)-1),
		Severity:  SeverityNone,
	}
	var sum float64
	for i := 1; i < len(sorted); i++ {
		if spansReload(sorted[i-1], sorted[i], reloads) {
			continue
		}
		gap := sorted[i].Sub(sorted[i-1]).Seconds()
		if len(p.Intervals) == 0 || gap < p.MinInterval {
			p.MinInterval = gap
		}
		p.Intervals = append(p.Intervals, gap)
		sum += gap
	}
	if len(p.Intervals) == 0 {
		return RefreshPattern{}, false
	}
	p.AvgInterval = sum / float64(len(p.Intervals))

	p.Suspicious = p.MinInterval < suspiciousMinInterval || p.AvgInterval < suspiciousAvgInterval
	switch {
	case p.MinInterval < highMinInterval:
		p.Severity = SeverityHigh
	case p.Suspicious:
		p.Severity = SeverityMedium
	}
	return p, true
}

// spansReload reports whether a reload mark falls in (prev, next].
func spansReload(prev, next time.Time, reloads []time.Time) bool {
	for _, m := range reloads {
		if m.After(prev) && !m.After(next) {
			return true
		}
	}
	return false
}

// refreshPatterns computes a pattern for every domain with at least one
// interval inside a single page load, sorted by domain.
func refreshPatterns(times map[string][]time.Time, reloads []time.Time) []RefreshPattern {
	domains := make([]string, 0, len(times))
	for d := range times {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	out := make([]RefreshPattern, 0, len(domains))
	for _, d := range domains {
		if p, ok := refreshPattern(d, times[d], reloads); ok {
			out = append(out, p)
		}
	}
	return out
}
