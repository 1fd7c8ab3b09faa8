package stealth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/adscope/internal/config"
)

// Brand is one entry of the client hints brand list.
type Brand struct {
	Brand   string `json:"brand"`
	Version string `json:"version"`
}

// Connection mirrors the Network Information API.
type Connection struct {
	EffectiveType string  `json:"effectiveType"`
	RTT           int     `json:"rtt"`
	Downlink      float64 `json:"downlink"`
}

// Profile is the identity presented to the page. Treat it as a value: the
// constructors copy every slice, and nothing in this package mutates one.
type Profile struct {
	UserAgent           string
	Platform            string
	Languages           []string
	HardwareConcurrency int
	DeviceMemory        int
	MaxTouchPoints      int
	WebGLVendor         string
	WebGLRenderer       string
	Brands              []Brand
	FullVersion         string
	UAPlatform          string
	UAPlatformVersion   string
	Architecture        string
	Bitness             string
	ScreenWidth         int
	ScreenHeight        int
	Timezone            string
	Locale              string
	NoiseSeed           uint32
	Connection          Connection
}

// ProfileFromConfig copies a configured profile.
func ProfileFromConfig(pc config.ProfileConfig) Profile {
	brands := make([]Brand, len(pc.Brands))
	for i, b := range pc.Brands {
		brands[i] = Brand{Brand: b.Brand, Version: b.Version}
	}
	return Profile{
		UserAgent:           pc.UserAgent,
		Platform:            pc.Platform,
		Languages:           append([]string(nil), pc.Languages...),
		HardwareConcurrency: pc.HardwareConcurrency,
		DeviceMemory:        pc.DeviceMemory,
		MaxTouchPoints:      pc.MaxTouchPoints,
		WebGLVendor:         pc.WebGLVendor,
		WebGLRenderer:       pc.WebGLRenderer,
		Brands:              brands,
		FullVersion:         pc.FullVersion,
		UAPlatform:          pc.UAPlatform,
		UAPlatformVersion:   pc.UAPlatformVersion,
		Architecture:        pc.Architecture,
		Bitness:             pc.Bitness,
		ScreenWidth:         pc.ScreenWidth,
		ScreenHeight:        pc.ScreenHeight,
		Timezone:            pc.Timezone,
		Locale:              pc.Locale,
		NoiseSeed:           pc.NoiseSeed,
		Connection: Connection{
			EffectiveType: pc.Connection.EffectiveType,
			RTT:           pc.Connection.RTT,
			Downlink:      pc.Connection.Downlink,
		},
	}
}

// DefaultProfile returns a consistent Chrome on Windows profile.
func DefaultProfile() Profile {
	return ProfileFromConfig(config.NewDefaultConfig().Stealth().Profile)
}

var (
	chromeToken = regexp.MustCompile(`\bChrome/(\d+)(?:\.[\d.]+)?`)
	edgeToken   = regexp.MustCompile(`\bEdg/(\d+)(?:\.[\d.]+)?`)
	firefox     = regexp.MustCompile(`\b(?:Firefox|FxiOS)/\d+`)
	safari      = regexp.MustCompile(`\bVersion/\d+[\d.]*.*\bSafari/`)
)

const (
	brandChrome   = "Google Chrome"
	brandChromium = "Chromium"
	brandEdge     = "Microsoft Edge"
)

// ErrNonChromium rejects user agents that cannot carry userAgentData.
var ErrNonChromium = errors.New("stealth: user agent is not Chromium based")

// Validate checks that the user agent, brand list and platform describe the
// same browser.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.UserAgent) == "" {
		return errors.New("stealth: profile: user agent is empty")
	}
	if firefox.MatchString(p.UserAgent) {
		return fmt.Errorf("%w: Firefox token in %q", ErrNonChromium, p.UserAgent)
	}
	chrome := chromeToken.FindStringSubmatch(p.UserAgent)
	if chrome == nil {
		if safari.MatchString(p.UserAgent) {
			return fmt.Errorf("%w: Safari token in %q", ErrNonChromium, p.UserAgent)
		}
		return fmt.Errorf("%w: no Chrome token in %q", ErrNonChromium, p.UserAgent)
	}
	chromeMajor := chrome[1]
	edgeMajor := ""
	if m := edgeToken.FindStringSubmatch(p.UserAgent); m != nil {
		edgeMajor = m[1]
	}

	if err := p.validateBrands(chromeMajor, edgeMajor); err != nil {
		return err
	}
	if p.FullVersion != "" && edgeMajor == "" && majorOf(p.FullVersion) != chromeMajor {
		return fmt.Errorf("stealth: profile: full version %s does not match Chrome/%s", p.FullVersion, chromeMajor)
	}
	if err := p.validatePlatform(); err != nil {
		return err
	}
	if len(p.Languages) == 0 {
		return errors.New("stealth: profile: languages must not be empty")
	}
	if p.HardwareConcurrency <= 0 {
		return fmt.Errorf("stealth: profile: hardware concurrency must be positive, got %d", p.HardwareConcurrency)
	}
	if p.ScreenWidth <= 0 || p.ScreenHeight <= 0 {
		return fmt.Errorf("stealth: profile: invalid screen %dx%d", p.ScreenWidth, p.ScreenHeight)
	}
	return nil
}

func (p Profile) validateBrands(chromeMajor, edgeMajor string) error {
	var product bool
	for _, b := range p.Brands {
		if isGreaseBrand(b.Brand) {
			continue
		}
		want := chromeMajor
		switch b.Brand {
		case brandEdge:
			if edgeMajor == "" {
				return fmt.Errorf("stealth: profile: brand %q without an Edg token in the user agent", b.Brand)
			}
			want = edgeMajor
		case brandChrome:
			if edgeMajor != "" {
				return fmt.Errorf("stealth: profile: brand %q on an Edge user agent", b.Brand)
			}
		case brandChromium:
		default:
			return fmt.Errorf("stealth: profile: unknown brand %q", b.Brand)
		}
		if majorOf(b.Version) != want {
			return fmt.Errorf("stealth: profile: brand %q version %s does not match user agent major %s", b.Brand, b.Version, want)
		}
		if b.Brand != brandChromium {
			product = true
		}
	}
	if !product {
		if edgeMajor != "" {
			return fmt.Errorf("stealth: profile: brand list lacks %q", brandEdge)
		}
		return fmt.Errorf("stealth: profile: brand list lacks %q", brandChrome)
	}
	return nil
}

// osFamily describes how one OS token shows up in navigator.platform and in
// the client hints platform.
type osFamily struct {
	token      string
	platforms  []string
	uaPlatform string
}

var osFamilies = []osFamily{
	{token: "Windows NT", platforms: []string{"Win32"}, uaPlatform: "Windows"},
	{token: "Macintosh", platforms: []string{"MacIntel"}, uaPlatform: "macOS"},
	{token: "CrOS", platforms: []string{"Linux x86_64", "Linux aarch64"}, uaPlatform: "Chrome OS"},
	{token: "Android", platforms: []string{"Linux armv8l", "Linux aarch64", "Linux armv7l"}, uaPlatform: "Android"},
	{token: "Linux", platforms: []string{"Linux x86_64", "Linux aarch64"}, uaPlatform: "Linux"},
}

func (p Profile) validatePlatform() error {
	for _, fam := range osFamilies {
		if !strings.Contains(p.UserAgent, fam.token) {
			continue
		}
		ok := false
		for _, platform := range fam.platforms {
			if p.Platform == platform {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("stealth: profile: platform %q does not match %s user agent", p.Platform, fam.token)
		}
		if p.UAPlatform != "" && p.UAPlatform != fam.uaPlatform {
			return fmt.Errorf("stealth: profile: client hints platform %q does not match %s user agent", p.UAPlatform, fam.token)
		}
		return nil
	}
	return fmt.Errorf("stealth: profile: no known OS token in %q", p.UserAgent)
}

func isGreaseBrand(name string) bool {
	return strings.Contains(name, "Not") && strings.Contains(name, "Brand")
}

func majorOf(version string) string {
	if i := strings.IndexByte(version, '.'); i >= 0 {
		return version[:i]
	}
	return version
}

// fullVersionList expands the low entropy brand list with full versions.
func (p Profile) fullVersionList() []Brand {
	out := make([]Brand, len(p.Brands))
	for i, b := range p.Brands {
		version := b.Version + ".0.0.0"
		if !isGreaseBrand(b.Brand) && p.FullVersion != "" && majorOf(p.FullVersion) == majorOf(b.Version) {
			version = p.FullVersion
		}
		out[i] = Brand{Brand: b.Brand, Version: version}
	}
	return out
}

// payload is the argument every patch unit receives.
type payload struct {
	Languages           []string   `json:"languages"`
	Platform            string     `json:"platform"`
	HardwareConcurrency int        `json:"hardwareConcurrency"`
	DeviceMemory        int        `json:"deviceMemory"`
	MaxTouchPoints      int        `json:"maxTouchPoints"`
	Connection          Connection `json:"connection"`
	Brands              []Brand    `json:"brands"`
	FullVersionList     []Brand    `json:"fullVersionList"`
	UAPlatform          string     `json:"uaPlatform"`
	UAPlatformVersion   string     `json:"uaPlatformVersion"`
	Architecture        string     `json:"architecture"`
	Bitness             string     `json:"bitness"`
	FullVersion         string     `json:"fullVersion"`
	NoiseSeed           uint32     `json:"noiseSeed"`
	WebGLVendor         string     `json:"webglVendor"`
	WebGLRenderer       string     `json:"webglRenderer"`
}

func (p Profile) payload() payload {
	return payload{
		Languages:           p.Languages,
		Platform:            p.Platform,
		HardwareConcurrency: p.HardwareConcurrency,
		DeviceMemory:        p.DeviceMemory,
		MaxTouchPoints:      p.MaxTouchPoints,
		Connection:          p.Connection,
		Brands:              p.Brands,
		FullVersionList:     p.fullVersionList(),
		UAPlatform:          p.UAPlatform,
		UAPlatformVersion:   p.UAPlatformVersion,
		Architecture:        p.Architecture,
		Bitness:             p.Bitness,
		FullVersion:         p.FullVersion,
		NoiseSeed:           p.NoiseSeed,
		WebGLVendor:         p.WebGLVendor,
		WebGLRenderer:       p.WebGLRenderer,
	}
}
