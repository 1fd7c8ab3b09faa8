package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Phase orders where a content candidate came from.
type Phase int

const (
	PhaseBaseline Phase = iota
	PhaseProgressive
	PhaseFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseBaseline:
		return "baseline"
	case PhaseProgressive:
		return "progressive"
	case PhaseFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Candidate is one piece of extracted content.
type Candidate struct {
	Phase    Phase
	Level    int
	Strategy string
	Content  string
}

// Source labels the candidate for results and logs.
func (c Candidate) Source() string {
	if c.Phase == PhaseProgressive {
		return c.Phase.String() + ":" + strconv.Itoa(c.Level)
	}
	return c.Phase.String()
}

// fallbackMarkers appear on interstitials, bot walls and error pages rather
// than on real content.
var fallbackMarkers = []string{
	"enable javascript",
	"javascript is disabled",
	"checking your browser",
	"just a moment",
	"verify you are human",
	"access denied",
	"captcha",
	"403 forbidden",
	"404 not found",
	"page not found",
	"please wait",
	"ray id",
}

var (
	headingLine  = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	listItemLine = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+\S`)
)

// Quality scores content for candidate selection. It rewards length and
// structure and penalizes known fallback text.
func Quality(content string) float64 {
	text := strings.TrimSpace(content)
	if text == "" {
		return 0
	}

	score := min(float64(utf8.RuneCountInString(text))/100, 40)
	score += min(float64(len(headingLine.FindAllStringIndex(text, -1)))*3, 15)
	score += min(float64(len(listItemLine.FindAllStringIndex(text, -1))), 10)
	score += min(float64(paragraphs(text))*2, 30)

	lower := strings.ToLower(text)
	for _, m := range fallbackMarkers {
		if strings.Contains(lower, m) {
			score -= 20
		}
	}
	return score
}

// paragraphs counts blocks of at least 80 characters.
func paragraphs(text string) int {
	n := 0
	for _, block := range strings.Split(text, "\n") {
		if utf8.RuneCountInString(strings.TrimSpace(block)) >= 80 {
			n++
		}
	}
	return n
}

// SelectBest returns the highest scoring candidate. Ties go to the later
// phase, then the deeper level, then the earlier entry, so the result only
// depends on the candidate set's contents and order.
func SelectBest(candidates []Candidate) (Candidate, bool) {
	bestIdx := -1
	var bestScore float64
	for i, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		s := Quality(c.Content)
		if bestIdx < 0 || better(s, c, bestScore, candidates[bestIdx]) {
			bestIdx, bestScore = i, s
		}
	}
	if bestIdx < 0 {
		return Candidate{}, false
	}
	return candidates[bestIdx], true
}

func better(s float64, c Candidate, bestScore float64, best Candidate) bool {
	switch {
	case s != bestScore:
		return s > bestScore
	case c.Phase != best.Phase:
		return c.Phase > best.Phase
	default:
		return c.Level > best.Level
	}
}
