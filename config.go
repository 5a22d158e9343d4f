package scrollwatch

import (
	"github.com/hazelview/scrollwatch/internal/config"
)

// Config is a tracker's configuration record. Re-exported from internal.
type Config = config.Config

// Thresholds is a visibility ratio or ordered sequence of ratios in [0,1].
type Thresholds = config.Thresholds

// Duration is a YAML-friendly debounce delay. A nil Config.DebounceDelay
// means "use the default"; an explicit zero stays zero.
type Duration = config.Duration

// DaemonConfig is the top-level daemon configuration.
type DaemonConfig = config.Daemon

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines one page to track.
type PageConfig = config.PageConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML daemon configuration file.
func LoadConfigFile(path string) (*DaemonConfig, error) {
	return config.LoadFile(path)
}
