package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpads/internal/app"
	"github.com/hyperifyio/serpads/internal/search"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath    string
		envFiles      string
		scenarioPath  string
		providersPath string
		eventsOut     string
		eventsStrict  bool
		eventsLog     bool
		metricsAddr   string
		attachTimeout time.Duration
		verbose       bool
		listProviders bool
		showVersion   bool
	)

	flag.StringVar(&configPath, "config", os.Getenv("SERPADS_CONFIG"), "Path to YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading the environment")
	flag.StringVar(&scenarioPath, "scenario", "", "Path to a JSON Lines replay scenario")
	flag.StringVar(&providersPath, "providers", "", "Path to a YAML/JSON file with additional provider rules")
	flag.StringVar(&eventsOut, "events.out", "", "Append emitted telemetry events to this JSON Lines file")
	flag.BoolVar(&eventsStrict, "events.strictPerms", false, "Create the events file with 0600 and its directory with 0700")
	flag.BoolVar(&eventsLog, "events.log", true, "Log each emitted telemetry event")
	flag.StringVar(&metricsAddr, "metrics.addr", "", "Serve Prometheus metrics on this address and keep running until interrupted")
	flag.DurationVar(&attachTimeout, "attach.timeout", 2*time.Second, "Maximum wait for the ads handler after an engine session is linked")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&listProviders, "list", false, "Print the provider catalog and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("serpads %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	if err := app.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
		log.Warn().Err(err).Msg("dotenv load failed")
	}

	cfg := app.Config{
		ScenarioPath:      scenarioPath,
		ProvidersPath:     providersPath,
		EventsOut:         eventsOut,
		EventsStrictPerms: eventsStrict,
		MetricsAddr:       metricsAddr,
		LogEvents:         eventsLog,
		AttachTimeout:     attachTimeout,
		Verbose:           verbose,
	}
	// Precedence: flags > env > config file
	fromFlags := cfg
	app.ApplyEnvToConfig(&cfg)
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	applyExplicitFlags(&cfg, fromFlags, explicit)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if listProviders {
		if err := printProviders(os.Stdout, cfg.ProvidersPath); err != nil {
			log.Error().Err(err).Msg("list providers")
			os.Exit(1)
		}
		return
	}

	if err := app.ValidateConfig(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", app.BuildVersion).Str("scenario", cfg.ScenarioPath).Msg("starting serpads")
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}

// applyExplicitFlags restores values of flags given on the command line so
// env and config file overlays cannot replace them, even when the value
// equals the flag default.
func applyExplicitFlags(cfg *app.Config, fromFlags app.Config, explicit map[string]bool) {
	if explicit["scenario"] {
		cfg.ScenarioPath = fromFlags.ScenarioPath
	}
	if explicit["providers"] {
		cfg.ProvidersPath = fromFlags.ProvidersPath
	}
	if explicit["events.out"] {
		cfg.EventsOut = fromFlags.EventsOut
	}
	if explicit["events.strictPerms"] {
		cfg.EventsStrictPerms = fromFlags.EventsStrictPerms
	}
	if explicit["events.log"] {
		cfg.LogEvents = fromFlags.LogEvents
	}
	if explicit["metrics.addr"] {
		cfg.MetricsAddr = fromFlags.MetricsAddr
	}
	if explicit["attach.timeout"] {
		cfg.AttachTimeout = fromFlags.AttachTimeout
	}
	if explicit["v"] {
		cfg.Verbose = fromFlags.Verbose
	}
}

func printProviders(w io.Writer, extraPath string) error {
	c := search.DefaultCatalog()
	if extraPath != "" {
		extra, err := search.LoadRulesFile(extraPath)
		if err != nil {
			return err
		}
		if c, err = search.Extend(c, extra...); err != nil {
			return err
		}
	}
	for i, r := range c.Rules() {
		fmt.Fprintf(w, "%d. %s\t%s\tad patterns: %d\n", i+1, r.Name, r.URLPattern, len(r.ExtraAdServerPatterns))
	}
	return nil
}
