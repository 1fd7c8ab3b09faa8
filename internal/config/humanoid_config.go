// File: internal/config/humanoid_config.go
// HumanoidConfig holds the tunable parameters of the input simulation: pointer
// easing and jitter, click timing, typing cadence and the scroll-and-capture loop.
// Millisecond fields are plain integers so they read naturally in YAML.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// HumanoidConfig defines the "personality" of simulated input.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Seed fixes the random source. Zero means seed from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Pointer movement
	MoveStepPx        float64 `mapstructure:"move_step_px" yaml:"move_step_px"`
	MoveStepMs        int     `mapstructure:"move_step_ms" yaml:"move_step_ms"`
	MoveMinSteps      int     `mapstructure:"move_min_steps" yaml:"move_min_steps"`
	MoveMaxSteps      int     `mapstructure:"move_max_steps" yaml:"move_max_steps"`
	JitterAmplitudePx float64 `mapstructure:"jitter_amplitude_px" yaml:"jitter_amplitude_px"`

	// Clicking
	ClickPreMinMs  int `mapstructure:"click_pre_min_ms" yaml:"click_pre_min_ms"`
	ClickPreMaxMs  int `mapstructure:"click_pre_max_ms" yaml:"click_pre_max_ms"`
	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	ClickPostMinMs int `mapstructure:"click_post_min_ms" yaml:"click_post_min_ms"`
	ClickPostMaxMs int `mapstructure:"click_post_max_ms" yaml:"click_post_max_ms"`

	// Typing
	KeyDelayMeanMs        float64 `mapstructure:"key_delay_mean_ms" yaml:"key_delay_mean_ms"`
	KeyDelayStdDevMs      float64 `mapstructure:"key_delay_stddev_ms" yaml:"key_delay_stddev_ms"`
	KeyDelayMinMs         float64 `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	ThinkPauseProbability float64 `mapstructure:"think_pause_probability" yaml:"think_pause_probability"`
	ThinkPauseMinMs       int     `mapstructure:"think_pause_min_ms" yaml:"think_pause_min_ms"`
	ThinkPauseMaxMs       int     `mapstructure:"think_pause_max_ms" yaml:"think_pause_max_ms"`

	// Scrolling
	ScrollMinSteps          int     `mapstructure:"scroll_min_steps" yaml:"scroll_min_steps"`
	ScrollMaxSteps          int     `mapstructure:"scroll_max_steps" yaml:"scroll_max_steps"`
	ScrollStepVariance      float64 `mapstructure:"scroll_step_variance" yaml:"scroll_step_variance"`
	ScrollStepMinMs         int     `mapstructure:"scroll_step_min_ms" yaml:"scroll_step_min_ms"`
	ScrollStepMaxMs         int     `mapstructure:"scroll_step_max_ms" yaml:"scroll_step_max_ms"`
	ReadingPauseProbability float64 `mapstructure:"reading_pause_probability" yaml:"reading_pause_probability"`
	ReadingPauseMinMs       int     `mapstructure:"reading_pause_min_ms" yaml:"reading_pause_min_ms"`
	ReadingPauseMaxMs       int     `mapstructure:"reading_pause_max_ms" yaml:"reading_pause_max_ms"`

	// Scroll-and-capture
	ViewportFraction float64 `mapstructure:"viewport_fraction" yaml:"viewport_fraction"`
	SettleMinMs      int     `mapstructure:"settle_min_ms" yaml:"settle_min_ms"`
	SettleMaxMs      int     `mapstructure:"settle_max_ms" yaml:"settle_max_ms"`
	QuickSettleMinMs int     `mapstructure:"quick_settle_min_ms" yaml:"quick_settle_min_ms"`
	QuickSettleMaxMs int     `mapstructure:"quick_settle_max_ms" yaml:"quick_settle_max_ms"`
}

// DefaultHumanoidConfig returns the defaults without going through viper.
func DefaultHumanoidConfig() HumanoidConfig {
	return NewDefaultConfig().HumanoidCfg
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.seed", 0)

	v.SetDefault("humanoid.move_step_px", 18.0)
	v.SetDefault("humanoid.move_step_ms", 12)
	v.SetDefault("humanoid.move_min_steps", 8)
	v.SetDefault("humanoid.move_max_steps", 60)
	v.SetDefault("humanoid.jitter_amplitude_px", 2.5)

	v.SetDefault("humanoid.click_pre_min_ms", 60)
	v.SetDefault("humanoid.click_pre_max_ms", 220)
	v.SetDefault("humanoid.click_hold_min_ms", 50)
	v.SetDefault("humanoid.click_hold_max_ms", 140)
	v.SetDefault("humanoid.click_post_min_ms", 80)
	v.SetDefault("humanoid.click_post_max_ms", 300)

	v.SetDefault("humanoid.key_delay_mean_ms", 110.0)
	v.SetDefault("humanoid.key_delay_stddev_ms", 35.0)
	v.SetDefault("humanoid.key_delay_min_ms", 30.0)
	v.SetDefault("humanoid.think_pause_probability", 0.08)
	v.SetDefault("humanoid.think_pause_min_ms", 400)
	v.SetDefault("humanoid.think_pause_max_ms", 1500)

	v.SetDefault("humanoid.scroll_min_steps", 3)
	v.SetDefault("humanoid.scroll_max_steps", 6)
	v.SetDefault("humanoid.scroll_step_variance", 0.25)
	v.SetDefault("humanoid.scroll_step_min_ms", 30)
	v.SetDefault("humanoid.scroll_step_max_ms", 90)
	v.SetDefault("humanoid.reading_pause_probability", 0.3)
	v.SetDefault("humanoid.reading_pause_min_ms", 600)
	v.SetDefault("humanoid.reading_pause_max_ms", 2200)

	v.SetDefault("humanoid.viewport_fraction", 0.7)
	v.SetDefault("humanoid.settle_min_ms", 2000)
	v.SetDefault("humanoid.settle_max_ms", 4000)
	v.SetDefault("humanoid.quick_settle_min_ms", 800)
	v.SetDefault("humanoid.quick_settle_max_ms", 1500)
}

// Validate checks that every range is well formed.
func (h *HumanoidConfig) Validate() error {
	ranges := []struct {
		name     string
		min, max int
	}{
		{"click_pre", h.ClickPreMinMs, h.ClickPreMaxMs},
		{"click_hold", h.ClickHoldMinMs, h.ClickHoldMaxMs},
		{"click_post", h.ClickPostMinMs, h.ClickPostMaxMs},
		{"think_pause", h.ThinkPauseMinMs, h.ThinkPauseMaxMs},
		{"scroll_step", h.ScrollStepMinMs, h.ScrollStepMaxMs},
		{"reading_pause", h.ReadingPauseMinMs, h.ReadingPauseMaxMs},
		{"settle", h.SettleMinMs, h.SettleMaxMs},
		{"quick_settle", h.QuickSettleMinMs, h.QuickSettleMaxMs},
		{"scroll_steps", h.ScrollMinSteps, h.ScrollMaxSteps},
		{"move_steps", h.MoveMinSteps, h.MoveMaxSteps},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("%s range is invalid: min=%d max=%d", r.name, r.min, r.max)
		}
	}
	if h.ScrollMinSteps < 1 {
		return fmt.Errorf("scroll_min_steps must be at least 1")
	}
	if h.ViewportFraction <= 0 || h.ViewportFraction > 1 {
		return fmt.Errorf("viewport_fraction must be in (0, 1], got %.2f", h.ViewportFraction)
	}
	for name, p := range map[string]float64{
		"think_pause_probability":   h.ThinkPauseProbability,
		"reading_pause_probability": h.ReadingPauseProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	return nil
}
