package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	envutil "github.com/projectdiscovery/utils/env"
	"gopkg.in/yaml.v3"

	"github.com/agent462/netsurvey/internal/pathutil"
)

// Config represents the top-level netsurvey configuration.
type Config struct {
	Groups   map[string]Group `yaml:"groups"`
	Defaults Defaults         `yaml:"defaults"`
	Services map[int]string   `yaml:"services,omitempty"` // port -> name; empty name removes a port
}

// Group defines a named set of networks with optional scan overrides.
type Group struct {
	Networks []string `yaml:"networks"`
	Mode     string   `yaml:"mode,omitempty"`
	Port     int      `yaml:"port,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// Defaults holds default scan settings.
type Defaults struct {
	Workers             int      `yaml:"workers"` // 0 means one per CPU
	Mode                string   `yaml:"mode"`    // "icmp", "tcp" or "fallback"
	Port                int      `yaml:"port"`
	Thorough            bool     `yaml:"thorough"`
	Timeout             Duration `yaml:"timeout"`
	Classify            bool     `yaml:"classify"`
	ClassifyConcurrency int      `yaml:"classify_concurrency"`
	ShowAll             bool     `yaml:"show_all"`
	Output              string   `yaml:"output"` // "table" or "json"
}

// Duration wraps time.Duration to support YAML unmarshaling from strings like "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Groups: make(map[string]Group),
		Defaults: Defaults{
			Workers:             0,
			Mode:                "fallback",
			Port:                80,
			Timeout:             Duration{time.Second},
			Classify:            true,
			ClassifyConcurrency: 16,
			Output:              "table",
		},
	}
}

// DefaultConfigPath returns the default config file path. $NETSURVEY_CONFIG
// wins, then $XDG_CONFIG_HOME, then ~/.config.
func DefaultConfigPath() string {
	return envutil.GetEnvOrDefault("NETSURVEY_CONFIG", xdgConfigPath())
}

func xdgConfigPath() string {
	return pathutil.ConfigFile("netsurvey", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from DefaultConfigPath. If the file does not
// exist, it returns the default config.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save writes the config to the given file path as YAML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

var validModes = map[string]bool{"icmp": true, "tcp": true, "fallback": true}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	d := c.Defaults
	if d.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", d.Workers)
	}
	if d.ClassifyConcurrency < 0 {
		return fmt.Errorf("classify_concurrency must be non-negative, got %d", d.ClassifyConcurrency)
	}
	if d.Timeout.Duration < 0 {
		return fmt.Errorf("default timeout must be non-negative, got %s", d.Timeout)
	}
	if err := validateModePort("defaults", d.Mode, d.Port); err != nil {
		return err
	}

	validOutputModes := map[string]bool{"table": true, "json": true}
	if d.Output != "" && !validOutputModes[d.Output] {
		return fmt.Errorf("invalid output mode %q, must be one of: table, json", d.Output)
	}

	nameRe := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	for name, group := range c.Groups {
		if !nameRe.MatchString(name) {
			return fmt.Errorf("group name %q must match [a-zA-Z0-9_-]+", name)
		}
		if len(group.Networks) == 0 {
			return fmt.Errorf("group %q has no networks", name)
		}
		if group.Timeout.Duration < 0 {
			return fmt.Errorf("group %q has negative timeout: %s", name, group.Timeout)
		}
		if err := validateModePort(fmt.Sprintf("group %q", name), group.Mode, group.Port); err != nil {
			return err
		}
	}

	for port, name := range c.Services {
		if port < 1 || port > 65535 {
			return fmt.Errorf("service port %d outside 1-65535 (%q)", port, name)
		}
	}

	return nil
}

func validateModePort(where, mode string, port int) error {
	if mode != "" && !validModes[strings.ToLower(mode)] {
		return fmt.Errorf("%s: invalid mode %q, must be one of: icmp, tcp, fallback", where, mode)
	}
	if port != 0 && (port < 1 || port > 65535) {
		return fmt.Errorf("%s: port %d outside 1-65535", where, port)
	}
	return nil
}
