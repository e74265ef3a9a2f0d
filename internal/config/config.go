// Package config loads portfind settings from an optional YAML or JSONC file.
//
// The file only provides defaults. The CLI layers environment variables and
// flags on top of it (see internal/cli).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/portfind/internal/model"
	"github.com/shinji-kodama/portfind/internal/port"
)

// Duration is a time.Duration that decodes from either a Go duration string
// ("1500ms", "2s") or a bare integer number of milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("delay must be a duration string or milliseconds: %w", err)
	}
	return d.parse(s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return d.parse(node.Value)
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) parse(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ParseDuration parses a delay given as a Go duration string or as a bare
// integer number of milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s, err)
	}
	return v, nil
}

// Config holds every setting of a port search.
type Config struct {
	// Start and End bound the searched range, inclusive.
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`

	// Retries is the number of attempts over the whole range.
	Retries int `yaml:"retries" json:"retries"`

	// Delay is the pause between two attempts.
	Delay Duration `yaml:"delay" json:"delay"`

	// Network is the socket type to probe (tcp, tcp4, tcp6, udp, udp4, udp6).
	Network string `yaml:"network" json:"network"`

	// Host is the local address to bind; empty means all interfaces.
	Host string `yaml:"host" json:"host"`

	// Concurrency caps probes in flight per attempt.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Strict turns probe errors into a failure instead of skipping the port.
	Strict bool `yaml:"strict" json:"strict"`

	// ExcludeDocker skips every host port published by a Docker container.
	ExcludeDocker bool `yaml:"excludeDocker" json:"excludeDocker"`
}

// Default returns the configuration used when nothing is specified:
// ports 4000-4500 over TCP, five attempts one second apart.
func Default() Config {
	return Config{
		Start:       port.DefaultStartPort,
		End:         port.DefaultEndPort,
		Retries:     port.DefaultRetries,
		Delay:       Duration(port.DefaultDelay),
		Network:     string(model.NetworkTCP),
		Concurrency: port.DefaultConcurrency,
	}
}

// Load reads the file at path on top of Default. Files ending in .json or
// .jsonc are parsed as JSON with comments; anything else as YAML.
func Load(path string) (*Config, error) {
	conf := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(raw), &conf); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &conf); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	return &conf, nil
}

// Request converts the range and retry settings into a scan request.
func (c Config) Request() port.Request {
	return port.Request{
		StartPort: c.Start,
		EndPort:   c.End,
		Retries:   c.Retries,
		Delay:     time.Duration(c.Delay),
	}
}

// Validate checks the settings the scanner does not validate itself, then
// the scan request.
func (c Config) Validate() error {
	if _, err := model.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency: %d is negative", c.Concurrency)
	}
	return c.Request().Validate()
}
