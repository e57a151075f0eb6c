package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpads/internal/ads"
	"github.com/hyperifyio/serpads/internal/host"
	"github.com/hyperifyio/serpads/internal/search"
	"github.com/hyperifyio/serpads/internal/telemetry"
)

type App struct {
	cfg      Config
	catalog  *search.Catalog
	browser  *host.Browser
	feature  *ads.Feature
	recorder *telemetry.Recorder
	events   *telemetry.FileSink
	registry *prometheus.Registry
	metrics  *http.Server
	addr     string
	cancel   context.CancelFunc
}

// New builds the provider catalog, telemetry sinks and the in-memory browser,
// and starts the ads feature.
func New(ctx context.Context, cfg Config) (*App, error) {
	catalog := search.DefaultCatalog()
	if cfg.ProvidersPath != "" {
		extra, err := search.LoadRulesFile(cfg.ProvidersPath)
		if err != nil {
			return nil, fmt.Errorf("load providers: %w", err)
		}
		catalog, err = search.Extend(catalog, extra...)
		if err != nil {
			return nil, fmt.Errorf("extend catalog: %w", err)
		}
		log.Info().Int("extra", len(extra)).Int("total", catalog.Len()).Msg("provider catalog extended")
	}

	a := &App{
		cfg:      cfg,
		catalog:  catalog,
		browser:  host.NewBrowser(),
		recorder: &telemetry.Recorder{},
		registry: prometheus.NewRegistry(),
	}

	prom, err := telemetry.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	sinks := telemetry.Multi{a.recorder, prom}
	if cfg.LogEvents {
		sinks = append(sinks, telemetry.LogSink{})
	}
	if cfg.EventsOut != "" {
		a.events = &telemetry.FileSink{Path: cfg.EventsOut, StrictPerms: cfg.EventsStrictPerms}
		sinks = append(sinks, a.events)
	}

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			return nil, err
		}
	}

	fctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.feature = ads.New(a.browser.Runtime, a.browser.Store, sinks, ads.WithCatalog(catalog))
	a.feature.Start(fctx)
	return a, nil
}

func (a *App) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	a.addr = ln.Addr().String()
	log.Info().Str("addr", a.addr).Msg("metrics server listening")
	return nil
}

// Close stops the feature, the metrics server and flushes the event file.
func (a *App) Close() {
	a.browser.Store.Close()
	if a.cancel != nil {
		a.cancel()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			log.Warn().Err(err).Msg("close event file")
		}
	}
}

// Catalog returns the provider catalog in use.
func (a *App) Catalog() *search.Catalog { return a.catalog }

// Recorder exposes every event emitted so far.
func (a *App) Recorder() *telemetry.Recorder { return a.recorder }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string { return a.addr }

// Registry exposes the metrics registry.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Run replays the configured scenario. When a metrics address is set it
// keeps serving until ctx is done.
func (a *App) Run(ctx context.Context) error {
	f, err := os.Open(a.cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	steps, err := ReadScenario(f)
	f.Close()
	if err != nil {
		return err
	}

	r := &Replayer{
		Browser:       a.browser,
		Feature:       a.feature,
		BaseDir:       filepath.Dir(a.cfg.ScenarioPath),
		AttachTimeout: a.cfg.AttachTimeout,
	}
	sum, err := r.Replay(ctx, steps)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	log.Info().
		Int("steps", sum.Steps).
		Int("messages", sum.Messages).
		Int("rejected", sum.Rejected).
		Int("clicks", sum.Clicks).
		Int("search_with_ads", a.recorder.Count(telemetry.KindSearchWithAds, "")).
		Int("ad_clicked", a.recorder.Count(telemetry.KindAdClicked, "")).
		Msg("replay finished")

	if a.metrics != nil {
		log.Info().Msg("serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}
