// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Stealth() StealthConfig
	Network() NetworkConfig
	Humanoid() HumanoidConfig
	Heatmap() HeatmapConfig
	Crawl() CrawlConfig
	Extract() ExtractConfig

	SetBrowserHeadless(bool)
	SetBrowserExecutablePath(string)
	SetNetworkBlockResources(bool)
	SetCrawlDepth(string)
	SetCrawlSimulateIdle(bool)
	SetCrawlCaptureScreenshot(bool)
}

// Config is the root configuration object, populated by viper.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	StealthCfg  StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
	NetworkCfg  NetworkConfig  `mapstructure:"network" yaml:"network"`
	HumanoidCfg HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	HeatmapCfg  HeatmapConfig  `mapstructure:"heatmap" yaml:"heatmap"`
	CrawlCfg    CrawlConfig    `mapstructure:"crawl" yaml:"crawl"`
	ExtractCfg  ExtractConfig  `mapstructure:"extract" yaml:"extract"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Stealth() StealthConfig   { return c.StealthCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) Humanoid() HumanoidConfig { return c.HumanoidCfg }
func (c *Config) Heatmap() HeatmapConfig   { return c.HeatmapCfg }
func (c *Config) Crawl() CrawlConfig       { return c.CrawlCfg }
func (c *Config) Extract() ExtractConfig   { return c.ExtractCfg }

// -- Setters used by CLI flag overrides --

func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserExecutablePath(p string) { c.BrowserCfg.ExecutablePath = p }
func (c *Config) SetNetworkBlockResources(b bool)   { c.NetworkCfg.BlockResources = b }
func (c *Config) SetCrawlDepth(d string)            { c.CrawlCfg.Depth = d }
func (c *Config) SetCrawlSimulateIdle(b bool)       { c.CrawlCfg.SimulateIdle = b }
func (c *Config) SetCrawlCaptureScreenshot(b bool)  { c.CrawlCfg.CaptureScreenshot = b }

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the browser process is located and launched.
type BrowserConfig struct {
	// ExecutablePath overrides executable discovery when set.
	ExecutablePath string        `mapstructure:"executable_path" yaml:"executable_path"`
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth    int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int           `mapstructure:"window_height" yaml:"window_height"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	// UserDataRoot is where per-session profile directories are created. Empty means the OS temp dir.
	UserDataRoot string   `mapstructure:"user_data_root" yaml:"user_data_root"`
	ExtraArgs    []string `mapstructure:"extra_args" yaml:"extra_args"`
	// OperationTimeout bounds individual protocol calls such as evaluate and input dispatch.
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// StealthConfig controls fingerprint patching and overlay removal.
type StealthConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	ExtraEvasions  bool          `mapstructure:"extra_evasions" yaml:"extra_evasions"`
	RemoveOverlays bool          `mapstructure:"remove_overlays" yaml:"remove_overlays"`
	Profile        ProfileConfig `mapstructure:"profile" yaml:"profile"`
}

// ProfileConfig is the raw fingerprint profile as read from configuration.
type ProfileConfig struct {
	UserAgent           string           `mapstructure:"user_agent" yaml:"user_agent"`
	Platform            string           `mapstructure:"platform" yaml:"platform"`
	Languages           []string         `mapstructure:"languages" yaml:"languages"`
	HardwareConcurrency int              `mapstructure:"hardware_concurrency" yaml:"hardware_concurrency"`
	DeviceMemory        int              `mapstructure:"device_memory" yaml:"device_memory"`
	MaxTouchPoints      int              `mapstructure:"max_touch_points" yaml:"max_touch_points"`
	WebGLVendor         string           `mapstructure:"webgl_vendor" yaml:"webgl_vendor"`
	WebGLRenderer       string           `mapstructure:"webgl_renderer" yaml:"webgl_renderer"`
	Brands              []BrandConfig    `mapstructure:"brands" yaml:"brands"`
	FullVersion         string           `mapstructure:"full_version" yaml:"full_version"`
	UAPlatform          string           `mapstructure:"ua_platform" yaml:"ua_platform"`
	UAPlatformVersion   string           `mapstructure:"ua_platform_version" yaml:"ua_platform_version"`
	Architecture        string           `mapstructure:"architecture" yaml:"architecture"`
	Bitness             string           `mapstructure:"bitness" yaml:"bitness"`
	ScreenWidth         int              `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight        int              `mapstructure:"screen_height" yaml:"screen_height"`
	Timezone            string           `mapstructure:"timezone" yaml:"timezone"`
	Locale              string           `mapstructure:"locale" yaml:"locale"`
	NoiseSeed           uint32           `mapstructure:"noise_seed" yaml:"noise_seed"`
	Connection          ConnectionConfig `mapstructure:"connection" yaml:"connection"`
}

// BrandConfig is one entry of the client hints brand list.
type BrandConfig struct {
	Brand   string `mapstructure:"brand" yaml:"brand"`
	Version string `mapstructure:"version" yaml:"version"`
}

// ConnectionConfig mirrors the Network Information API.
type ConnectionConfig struct {
	EffectiveType string  `mapstructure:"effective_type" yaml:"effective_type"`
	RTT           int     `mapstructure:"rtt" yaml:"rtt"`
	Downlink      float64 `mapstructure:"downlink" yaml:"downlink"`
}

// NetworkConfig holds navigation and network-wait settings.
type NetworkConfig struct {
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	IdleWindow         time.Duration `mapstructure:"idle_window" yaml:"idle_window"`
	DOMQuietTimeout    time.Duration `mapstructure:"dom_quiet_timeout" yaml:"dom_quiet_timeout"`
	DOMQuietWindow     time.Duration `mapstructure:"dom_quiet_window" yaml:"dom_quiet_window"`
	BlockResources     bool          `mapstructure:"block_resources" yaml:"block_resources"`
	EventBuffer        int           `mapstructure:"event_buffer" yaml:"event_buffer"`
	VASTFetchPerSecond float64       `mapstructure:"vast_fetch_per_second" yaml:"vast_fetch_per_second"`
	Proxy              ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// ProxyConfig describes an optional upstream proxy.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// HeatmapConfig tunes the scroll-synchronized ad heatmap.
type HeatmapConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	FullMaxLevels     int           `mapstructure:"full_max_levels" yaml:"full_max_levels"`
	QuickMaxLevels    int           `mapstructure:"quick_max_levels" yaml:"quick_max_levels"`
	LayoutShiftWindow time.Duration `mapstructure:"layout_shift_window" yaml:"layout_shift_window"`
	MinAdSize         int           `mapstructure:"min_ad_size" yaml:"min_ad_size"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
}

// CrawlConfig holds the defaults for a single crawl.
type CrawlConfig struct {
	// Depth is "full" or "quick".
	Depth               string        `mapstructure:"depth" yaml:"depth"`
	SimulateIdle        bool          `mapstructure:"simulate_idle" yaml:"simulate_idle"`
	IdleDuration        time.Duration `mapstructure:"idle_duration" yaml:"idle_duration"`
	CaptureScreenshot   bool          `mapstructure:"capture_screenshot" yaml:"capture_screenshot"`
	MaxRecoveryAttempts int           `mapstructure:"max_recovery_attempts" yaml:"max_recovery_attempts"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExtractConfig tunes content extraction.
type ExtractConfig struct {
	MinContentLength int           `mapstructure:"min_content_length" yaml:"min_content_length"`
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "adscope")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.executable_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.user_data_root", "")
	v.SetDefault("browser.extra_args", []string{})
	v.SetDefault("browser.operation_timeout", "20s")

	// -- Stealth --
	v.SetDefault("stealth.enabled", true)
	v.SetDefault("stealth.extra_evasions", false)
	v.SetDefault("stealth.remove_overlays", true)
	setProfileDefaults(v)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.idle_timeout", "15s")
	v.SetDefault("network.idle_window", "1500ms")
	v.SetDefault("network.dom_quiet_timeout", "8s")
	v.SetDefault("network.dom_quiet_window", "800ms")
	v.SetDefault("network.block_resources", false)
	v.SetDefault("network.event_buffer", 2048)
	v.SetDefault("network.vast_fetch_per_second", 2.0)
	v.SetDefault("network.proxy.enabled", false)
	v.SetDefault("network.proxy.address", "")

	// -- Humanoid --
	setHumanoidDefaults(v)

	// -- Heatmap --
	v.SetDefault("heatmap.enabled", true)
	v.SetDefault("heatmap.full_max_levels", 20)
	v.SetDefault("heatmap.quick_max_levels", 6)
	v.SetDefault("heatmap.layout_shift_window", "1s")
	v.SetDefault("heatmap.min_ad_size", 20)
	v.SetDefault("heatmap.max_elements", 500)

	// -- Crawl --
	v.SetDefault("crawl.depth", "full")
	v.SetDefault("crawl.simulate_idle", false)
	v.SetDefault("crawl.idle_duration", "5s")
	v.SetDefault("crawl.capture_screenshot", false)
	v.SetDefault("crawl.max_recovery_attempts", 2)
	v.SetDefault("crawl.timeout", "5m")

	// -- Extract --
	v.SetDefault("extract.min_content_length", 100)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.initial_backoff", "500ms")
	v.SetDefault("extract.max_backoff", "4s")
	v.SetDefault("extract.attempt_timeout", "15s")
}

// setProfileDefaults installs a coherent Chrome-on-Windows fingerprint.
func setProfileDefaults(v *viper.Viper) {
	v.SetDefault("stealth.profile.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("stealth.profile.platform", "Win32")
	v.SetDefault("stealth.profile.languages", []string{"en-US", "en"})
	v.SetDefault("stealth.profile.hardware_concurrency", 8)
	v.SetDefault("stealth.profile.device_memory", 8)
	v.SetDefault("stealth.profile.max_touch_points", 0)
	v.SetDefault("stealth.profile.webgl_vendor", "Google Inc. (Intel)")
	v.SetDefault("stealth.profile.webgl_renderer", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)")
	v.SetDefault("stealth.profile.brands", []map[string]interface{}{
		{"brand": "Google Chrome", "version": "131"},
		{"brand": "Chromium", "version": "131"},
		{"brand": "Not_A Brand", "version": "24"},
	})
	v.SetDefault("stealth.profile.full_version", "131.0.6778.86")
	v.SetDefault("stealth.profile.ua_platform", "Windows")
	v.SetDefault("stealth.profile.ua_platform_version", "15.0.0")
	v.SetDefault("stealth.profile.architecture", "x86")
	v.SetDefault("stealth.profile.bitness", "64")
	v.SetDefault("stealth.profile.screen_width", 1920)
	v.SetDefault("stealth.profile.screen_height", 1080)
	v.SetDefault("stealth.profile.timezone", "America/New_York")
	v.SetDefault("stealth.profile.locale", "en-US")
	v.SetDefault("stealth.profile.noise_seed", 0)
	v.SetDefault("stealth.profile.connection.effective_type", "4g")
	v.SetDefault("stealth.profile.connection.rtt", 50)
	v.SetDefault("stealth.profile.connection.downlink", 10.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Proxy credentials stay out of config files.
	_ = v.BindEnv("network.proxy.username", "ADSCOPE_PROXY_USERNAME")
	_ = v.BindEnv("network.proxy.password", "ADSCOPE_PROXY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.BrowserCfg.ExecutablePath == "" {
		cfg.BrowserCfg.ExecutablePath = os.Getenv("CHROME_PATH")
	}
	for _, p := range []*string{&cfg.BrowserCfg.ExecutablePath, &cfg.BrowserCfg.UserDataRoot, &cfg.LoggerCfg.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("error expanding path %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	if c.BrowserCfg.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be positive")
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive")
	}
	if c.NetworkCfg.IdleWindow <= 0 || c.NetworkCfg.IdleWindow > c.NetworkCfg.IdleTimeout {
		return fmt.Errorf("network.idle_window must be positive and not exceed network.idle_timeout")
	}
	if c.NetworkCfg.EventBuffer <= 0 {
		return fmt.Errorf("network.event_buffer must be a positive integer")
	}
	if c.NetworkCfg.Proxy.Enabled && c.NetworkCfg.Proxy.Address == "" {
		return fmt.Errorf("network.proxy.address is required when the proxy is enabled")
	}
	switch strings.ToLower(c.CrawlCfg.Depth) {
	case "full", "quick":
	default:
		return fmt.Errorf("crawl.depth must be either 'full' or 'quick', got %q", c.CrawlCfg.Depth)
	}
	if c.CrawlCfg.MaxRecoveryAttempts < 0 {
		return fmt.Errorf("crawl.max_recovery_attempts cannot be negative")
	}
	if c.HeatmapCfg.FullMaxLevels <= 0 || c.HeatmapCfg.QuickMaxLevels <= 0 {
		return fmt.Errorf("heatmap max levels must be positive integers")
	}
	if c.ExtractCfg.MaxAttempts <= 0 {
		return fmt.Errorf("extract.max_attempts must be a positive integer")
	}
	if c.ExtractCfg.MinContentLength < 0 {
		return fmt.Errorf("extract.min_content_length cannot be negative")
	}
	if err := c.HumanoidCfg.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	return nil
}
