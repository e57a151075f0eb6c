package telemetry

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	// Logger defaults to the global zerolog logger when nil.
	Logger *zerolog.Logger
}

func (s LogSink) Track(ev Event) {
	l := s.Logger
	if l == nil {
		l = &log.Logger
	}
	l.Info().
		Str("event", string(ev.Kind)).
		Str("provider", ev.Provider).
		Time("at", ev.Time).
		Msg("ad telemetry")
}
