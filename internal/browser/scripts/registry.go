// Package scripts is the single registry of JavaScript evaluated inside the page.
//
// Every unit is a self-contained function expression stored under js/. A unit
// receives its arguments JSON-encoded and returns a JSON-serializable value.
// Invocations are built with Invoke so that arguments never get spliced into
// source text by hand.
package scripts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
)

//go:embed js/*.js
var files embed.FS

// Unit names. Patch units take the fingerprint payload as their only argument.
const (
	PatchAutomation = "automation"
	PatchNavigator  = "navigator"
	PatchUAData     = "uadata"
	PatchVisibility = "visibility"
	PatchCanvas     = "canvas"
	PatchWebGL      = "webgl"
	PatchPlugins    = "plugins"
	PatchGlobals    = "globals"

	RemoveOverlays = "overlays"
	DetectAds      = "detect_ads"
	LayoutShift    = "layout_shift"
	DOMQuiet       = "dom_quiet"
	PageMetrics    = "page_metrics"
	ElementCenter  = "element_center"
	ScrollBy       = "scroll_by"
	MainText       = "main_text"
	StructuredHTML = "structured_html"
	OuterHTML      = "outer_html"
	IframeText     = "iframe_text"
	TextNodes      = "text_nodes"
	Location       = "location"
)

// Unit is one versioned script with its documented contract.
type Unit struct {
	Name    string
	Version int
	// Args and Returns describe the calling contract for reviewers.
	Args    string
	Returns string
	Source  string
}

// catalog bumps a version whenever a unit's contract or behavior changes.
var catalog = []Unit{
	{Name: PatchAutomation, Version: 2, Args: "profile", Returns: "bool"},
	{Name: PatchNavigator, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchUAData, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchVisibility, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchCanvas, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchWebGL, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchPlugins, Version: 1, Args: "profile", Returns: "bool"},
	{Name: PatchGlobals, Version: 1, Args: "profile", Returns: "bool"},
	{Name: RemoveOverlays, Version: 1, Args: "{consentSelectors, acceptPhrases, keepPatterns, minCoverage}", Returns: "{clicked, removed, scrollRestored}"},
	{Name: DetectAds, Version: 4, Args: "{containers, iframeSources, ctaPhrases, minSize, maxElements}", Returns: "{viewportWidth, viewportHeight, scrollY, scrollHeight, detections}"},
	{Name: LayoutShift, Version: 1, Args: "windowMs", Returns: "number"},
	{Name: DOMQuiet, Version: 1, Args: "quietMs, timeoutMs", Returns: "bool"},
	{Name: PageMetrics, Version: 1, Args: "", Returns: "{scrollY, viewportWidth, viewportHeight, scrollHeight}"},
	{Name: ElementCenter, Version: 1, Args: "selector", Returns: "{x, y, width, height} | null"},
	{Name: ScrollBy, Version: 1, Args: "dy", Returns: "number"},
	{Name: MainText, Version: 2, Args: "", Returns: "string"},
	{Name: StructuredHTML, Version: 2, Args: "", Returns: "string"},
	{Name: OuterHTML, Version: 1, Args: "", Returns: "string"},
	{Name: IframeText, Version: 1, Args: "", Returns: "string"},
	{Name: TextNodes, Version: 1, Args: "", Returns: "string"},
	{Name: Location, Version: 1, Args: "", Returns: "string"},
}

var registry = mustLoad()

func mustLoad() map[string]Unit {
	out := make(map[string]Unit, len(catalog))
	for _, u := range catalog {
		b, err := files.ReadFile("js/" + u.Name + ".js")
		if err != nil {
			panic(fmt.Sprintf("scripts: missing source for %q: %v", u.Name, err))
		}
		u.Source = strings.TrimSpace(string(b))
		out[u.Name] = u
	}
	return out
}

// Get returns the named unit.
func Get(name string) (Unit, error) {
	u, ok := registry[name]
	if !ok {
		return Unit{}, fmt.Errorf("scripts: unknown unit %q", name)
	}
	return u, nil
}

// Names lists every registered unit in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke builds a call expression for the unit with JSON-encoded arguments.
func (u Unit) Invoke(args ...interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("scripts: encode argument %d for %s: %w", i, u.Name, err)
		}
		encoded[i] = string(b)
	}
	var sb strings.Builder
	sb.Grow(len(u.Source) + 64)
	sb.WriteString("(")
	sb.WriteString(u.Source)
	sb.WriteString("\n)(")
	sb.WriteString(strings.Join(encoded, ", "))
	sb.WriteString(")")
	return sb.String(), nil
}

// Call looks up the named unit and builds its invocation.
func Call(name string, args ...interface{}) (string, error) {
	u, err := Get(name)
	if err != nil {
		return "", err
	}
	return u.Invoke(args...)
}

// Guarded wraps an invocation so a throwing unit cannot abort the surrounding bundle.
func Guarded(expr string) string {
	return "try {\n" + expr + ";\n} catch (e) {}\n"
}
