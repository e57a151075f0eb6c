package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Replay
	ScenarioPath  string
	AttachTimeout time.Duration

	// Provider catalog
	ProvidersPath string

	// Telemetry
	EventsOut         string
	EventsStrictPerms bool
	MetricsAddr       string
	LogEvents         bool

	// Behavior
	Verbose bool
}

const defaultAttachTimeout = 2 * time.Second
