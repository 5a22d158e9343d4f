// Package config holds scrollwatch configuration: the immutable per-tracker
// record, the daemon YAML file format, and the SQLite tracked_pages table.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTriggerAttribute names the attribute carrying the trigger
	// identifier.
	DefaultTriggerAttribute = "data-trigger"

	// DefaultDebounceDelay is the quiet period after the last visibility
	// batch before a resolution pass runs.
	DefaultDebounceDelay = 10 * time.Millisecond
)

// Config is a tracker's configuration. It is immutable after construction:
// defaults are merged once and the record is never mutated afterwards.
type Config struct {
	// Selector matches the tracked elements. Default: "[data-trigger]".
	Selector string `yaml:"selector"`

	// TriggerAttribute carries the trigger identifier. Default: "data-trigger".
	TriggerAttribute string `yaml:"trigger_attribute"`

	// Threshold is the visibility ratio (or ordered ratios) in [0,1] at
	// which elements count as visible. Default: 0.
	Threshold Thresholds `yaml:"threshold"`

	// RootMargin adjusts the viewport boundary, CSS-margin shorthand.
	// Default: "0px".
	RootMargin string `yaml:"root_margin"`

	// DebounceDelay is the resolution quiet period. Must be >= 0. Nil
	// means unset; an explicit zero stays zero. Default: 10ms.
	DebounceDelay *Duration `yaml:"debounce_delay"`

	// Debug renders diagnostic reports to the log sink.
	Debug bool `yaml:"debug"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.TriggerAttribute == "" {
		c.TriggerAttribute = DefaultTriggerAttribute
	}
	if c.Selector == "" {
		c.Selector = "[" + c.TriggerAttribute + "]"
	}
	if len(c.Threshold) == 0 {
		c.Threshold = Thresholds{0}
	}
	if c.RootMargin == "" {
		c.RootMargin = "0px"
	}
	if c.DebounceDelay == nil {
		d := Duration(DefaultDebounceDelay)
		c.DebounceDelay = &d
	}
}

// Debounce returns the configured delay, or the default when unset.
func (c *Config) Debounce() time.Duration {
	if c.DebounceDelay == nil {
		return DefaultDebounceDelay
	}
	return time.Duration(*c.DebounceDelay)
}

// Validate fails fast on caller contract violations. It does not clamp.
func (c *Config) Validate() error {
	if c.DebounceDelay != nil && *c.DebounceDelay < 0 {
		return fmt.Errorf("config: debounce_delay must be >= 0, got %s", time.Duration(*c.DebounceDelay))
	}
	for _, t := range c.Threshold {
		if t < 0 || t > 1 {
			return fmt.Errorf("config: threshold %v outside [0,1]", t)
		}
	}
	if err := validateMargin(c.RootMargin); err != nil {
		return err
	}
	if strings.TrimSpace(c.Selector) == "" {
		return fmt.Errorf("config: selector must not be blank")
	}
	if strings.TrimSpace(c.TriggerAttribute) == "" {
		return fmt.Errorf("config: trigger_attribute must not be blank")
	}
	return nil
}

// Duration is a time.Duration that unmarshals from a YAML duration string
// ("25ms", "1s") or a bare integer, read as milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("config: debounce_delay must be a duration string or integer milliseconds")
	}
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: debounce_delay: %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: debounce_delay: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Thresholds accepts either a YAML scalar or a sequence of scalars.
type Thresholds []float64

func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := value.Decode(&f); err != nil {
			return fmt.Errorf("config: threshold: %w", err)
		}
		*t = Thresholds{f}
		return nil
	case yaml.SequenceNode:
		var fs []float64
		if err := value.Decode(&fs); err != nil {
			return fmt.Errorf("config: threshold: %w", err)
		}
		*t = Thresholds(fs)
		return nil
	default:
		return fmt.Errorf("config: threshold must be a number or a list of numbers")
	}
}

var marginPart = regexp.MustCompile(`^-?\d+(\.\d+)?(px|%)$`)

// validateMargin checks CSS-margin shorthand: one to four length values,
// each in px or %.
func validateMargin(margin string) error {
	parts := strings.Fields(margin)
	if len(parts) == 0 || len(parts) > 4 {
		return fmt.Errorf("config: root_margin %q must have 1-4 values", margin)
	}
	for _, p := range parts {
		if !marginPart.MatchString(p) {
			return fmt.Errorf("config: root_margin value %q must be a px or %% length", p)
		}
	}
	return nil
}
