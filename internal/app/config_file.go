package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Scenario      string        `yaml:"scenario" json:"scenario"`
	AttachTimeout time.Duration `yaml:"attachTimeout" json:"attachTimeout"`
	Providers     string        `yaml:"providers" json:"providers"`

	Events struct {
		Out         string `yaml:"out" json:"out"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms"`
		Log         *bool  `yaml:"log" json:"log"`
	} `yaml:"events" json:"events"`

	Metrics struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"metrics" json:"metrics"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg, so explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.ScenarioPath == "" && fc.Scenario != "" {
		cfg.ScenarioPath = fc.Scenario
	}
	if (cfg.AttachTimeout == 0 || cfg.AttachTimeout == defaultAttachTimeout) && fc.AttachTimeout > 0 {
		cfg.AttachTimeout = fc.AttachTimeout
	}
	if cfg.ProvidersPath == "" && fc.Providers != "" {
		cfg.ProvidersPath = fc.Providers
	}
	if cfg.EventsOut == "" && fc.Events.Out != "" {
		cfg.EventsOut = fc.Events.Out
	}
	if !cfg.EventsStrictPerms && fc.Events.StrictPerms {
		cfg.EventsStrictPerms = true
	}
	// Event logging defaults on; the file may only turn it off.
	if fc.Events.Log != nil && !*fc.Events.Log {
		cfg.LogEvents = false
	}
	if cfg.MetricsAddr == "" && fc.Metrics.Addr != "" {
		cfg.MetricsAddr = fc.Metrics.Addr
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal validation for required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ScenarioPath) == "" {
		return errors.New("config: scenario path is required (or set SERPADS_SCENARIO)")
	}
	if cfg.AttachTimeout < 0 {
		return errors.New("config: attach timeout must not be negative")
	}
	if cfg.MetricsAddr != "" && !strings.Contains(cfg.MetricsAddr, ":") {
		return fmt.Errorf("config: metrics address %q must be host:port or :port", cfg.MetricsAddr)
	}
	return nil
}
