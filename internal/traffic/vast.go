// internal/traffic/vast.go
package traffic

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// BodySource fetches the body of a finished response. *session.Session
// satisfies it.
type BodySource interface {
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
}

// VASTSummary aggregates what the inspected video ad responses contained.
type VASTSummary struct {
	// Responses counts XML responses to video ad calls, inspected or not.
	Responses int `json:"responses"`
	Inspected int `json:"inspected"`
	// Skipped responses were throttled or arrived without a body source.
	Skipped     int      `json:"skipped"`
	Errors      int      `json:"errors"`
	Empty       int      `json:"empty"`
	Ads         int      `json:"ads"`
	Wrappers    int      `json:"wrappers"`
	Impressions int      `json:"impressions"`
	MediaFiles  int      `json:"mediaFiles"`
	AdBreaks    int      `json:"adBreaks"`
	Versions    []string `json:"versions,omitempty"`
}

// vastDocument is the result of inspecting one body.
type vastDocument struct {
	version     string
	ads         int
	wrappers    int
	impressions int
	mediaFiles  int
	adBreaks    int
}

// inspectVAST parses a VAST or VMAP body. Wrapper chains are not followed;
// each VASTAdTagURI counts as one wrapper hop.
func inspectVAST(body []byte) (vastDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return vastDocument{}, err
	}
	root := doc.Root()
	if root == nil {
		return vastDocument{}, errNotVAST
	}

	var out vastDocument
	switch root.Tag {
	case "VAST":
		out.version = root.SelectAttrValue("version", "")
	case "VMAP":
		out.version = "vmap-" + root.SelectAttrValue("version", "")
		out.adBreaks = len(doc.FindElements("//AdBreak"))
	default:
		return vastDocument{}, errNotVAST
	}

	out.ads = len(doc.FindElements("//Ad"))
	out.wrappers = len(doc.FindElements("//VASTAdTagURI"))
	out.impressions = len(doc.FindElements("//Impression"))
	out.mediaFiles = len(doc.FindElements("//MediaFile"))
	return out, nil
}

func (s *VASTSummary) add(doc vastDocument) {
	s.Inspected++
	s.Ads += doc.ads
	s.Wrappers += doc.wrappers
	s.Impressions += doc.impressions
	s.MediaFiles += doc.mediaFiles
	s.AdBreaks += doc.adBreaks
	if doc.ads == 0 && doc.adBreaks == 0 {
		s.Empty++
	}
	if doc.version == "" {
		return
	}
	i := sort.SearchStrings(s.Versions, doc.version)
	if i < len(s.Versions) && s.Versions[i] == doc.version {
		return
	}
	s.Versions = append(s.Versions, "")
	copy(s.Versions[i+1:], s.Versions[i:])
	s.Versions[i] = doc.version
}

// isXMLResponse reports whether a MIME type can carry a VAST document.
func isXMLResponse(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "xml")
}

const defaultVASTTimeout = 3 * time.Second
