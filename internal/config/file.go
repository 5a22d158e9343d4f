package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Daemon is the top-level daemon configuration.
type Daemon struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Listen  string        `yaml:"listen"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	Remote string `yaml:"remote"`

	// Stealth applies bot-detection countermeasures to new tabs.
	Stealth bool `yaml:"stealth"`
}

// PageConfig defines one page to track.
type PageConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Tracker Config `yaml:"tracker"`
}

// SinkConfig defines an output backend for identifier transitions.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadFile reads a YAML daemon configuration file, applies defaults, and
// validates every tracker record.
func LoadFile(path string) (*Daemon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d Daemon
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	d.applyDefaults()
	for i := range d.Pages {
		if err := d.Pages[i].Tracker.Validate(); err != nil {
			return nil, fmt.Errorf("config: page %q: %w", d.Pages[i].ID, err)
		}
	}
	return &d, nil
}

func (d *Daemon) applyDefaults() {
	if d.Listen == "" {
		d.Listen = ":8490"
	}
	for i := range d.Pages {
		d.Pages[i].Tracker.ApplyDefaults()
	}
}
