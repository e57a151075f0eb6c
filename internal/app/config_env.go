package app

import (
	"os"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.ScenarioPath == "" {
		cfg.ScenarioPath = os.Getenv("SERPADS_SCENARIO")
	}
	if cfg.ProvidersPath == "" {
		cfg.ProvidersPath = os.Getenv("SERPADS_PROVIDERS")
	}
	if cfg.EventsOut == "" {
		cfg.EventsOut = os.Getenv("SERPADS_EVENTS_OUT")
	}
	if cfg.MetricsAddr == "" {
		// Support both names; prefer SERPADS_METRICS_ADDR if set
		v := os.Getenv("SERPADS_METRICS_ADDR")
		if v == "" {
			v = os.Getenv("METRICS_ADDR")
		}
		cfg.MetricsAddr = v
	}
	if cfg.AttachTimeout == 0 || cfg.AttachTimeout == defaultAttachTimeout {
		if s := os.Getenv("SERPADS_ATTACH_TIMEOUT"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cfg.AttachTimeout = d
			}
		}
	}

	setBool := func(dst *bool, envKey string) {
		if *dst {
			return
		}
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
			if s == "1" || s == "true" || s == "yes" || s == "on" {
				*dst = true
			}
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.EventsStrictPerms, "SERPADS_EVENTS_STRICT_PERMS")

	// Event logging defaults on; env may only turn it off.
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SERPADS_LOG_EVENTS"))) {
	case "0", "false", "no", "off":
		cfg.LogEvents = false
	}
}
