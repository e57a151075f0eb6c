package ads

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpads/internal/search"
	"github.com/hyperifyio/serpads/internal/telemetry"
)

// Reply is returned to the host for every handled content message.
const Reply = "<nothing>"

// Feature attributes results pages and ad clicks to search providers. It
// attaches one content message handler per engine session and reports
// telemetry through a Sink.
type Feature struct {
	installer Installer
	store     SessionStore
	catalog   *search.Catalog
	sink      telemetry.Sink

	startOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}
}

// Option configures a Feature.
type Option func(*Feature)

// WithCatalog replaces the built-in provider catalog.
func WithCatalog(c *search.Catalog) Option {
	return func(f *Feature) {
		if c != nil {
			f.catalog = c
		}
	}
}

// New creates a Feature. A nil sink discards events.
func New(installer Installer, store SessionStore, sink telemetry.Sink, opts ...Option) *Feature {
	if sink == nil {
		sink = telemetry.Discard
	}
	f := &Feature{
		installer: installer,
		store:     store,
		catalog:   search.DefaultCatalog(),
		sink:      sink,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Catalog returns the provider catalog in use.
func (f *Feature) Catalog() *search.Catalog { return f.catalog }

// Start installs the ads extension and, once it is installed, attaches a
// message handler to every engine session published by the session store
// until ctx is done or the store closes its subscription. Start returns
// immediately; later calls are no-ops. Install failures are logged and not
// retried.
func (f *Feature) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		if f.installer == nil || f.store == nil {
			log.Warn().Msg("ads: no installer or session store; handlers will not be attached")
			f.finish()
			return
		}
		f.installer.InstallExtension(ExtensionID, ExtensionResourceURL, true,
			func(ext Extension) {
				log.Debug().Str("extension", ExtensionID).Msg("ads extension installed")
				go f.watch(ctx, ext)
			},
			func(id string, err error) {
				log.Error().Err(err).Str("extension", id).Msg("failed to install ads extension")
				f.finish()
			},
		)
	})
}

// Done is closed once the feature stops attaching handlers: after an install
// failure or when the session subscription ends.
func (f *Feature) Done() <-chan struct{} { return f.done }

func (f *Feature) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *Feature) watch(ctx context.Context, ext Extension) {
	defer f.finish()
	snapshots := f.store.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			f.attach(ext, snap)
		}
	}
}

// attach registers a handler for the snapshot's engine session unless one
// is already registered. It reports whether a handler was registered.
func (f *Feature) attach(ext Extension, snap Snapshot) bool {
	es := snap.EngineSession
	if es == nil {
		return false
	}
	if ext.HasMessageHandler(es, MessageID) {
		return false
	}
	ext.RegisterMessageHandler(es, MessageID, &messageHandler{feature: f, session: es})
	log.Debug().Str("session", snap.SessionID).Str("engine", es.ID()).Msg("ads message handler attached")
	return true
}

// HandleMessage processes one content message: when the page belongs to a
// known provider and any of its document URLs is an ad, a SearchWithAds
// event is emitted. Malformed messages are returned as errors and emit
// nothing.
func (f *Feature) HandleMessage(raw json.RawMessage) error {
	msg, err := ParseMessage(raw)
	if err != nil {
		return err
	}
	rule, ok := f.catalog.Resolve(msg.URL)
	if !ok {
		return nil
	}
	if rule.ContainsAds(msg.URLs) {
		log.Debug().Str("provider", rule.Name).Msg("results page contains ads")
		f.sink.Track(telemetry.SearchWithAds(rule.Name))
	}
	return nil
}

// TrackAdClick emits AdClicked when sessionURL is a known provider's results
// page and any URL in urlPath is one of its ads. An empty sessionURL means
// there is nothing to attribute to.
func (f *Feature) TrackAdClick(sessionURL string, urlPath []string) {
	if sessionURL == "" {
		return
	}
	rule, ok := f.catalog.Resolve(sessionURL)
	if !ok {
		return
	}
	if rule.ContainsAds(urlPath) {
		log.Debug().Str("provider", rule.Name).Msg("ad clicked")
		f.sink.Track(telemetry.AdClicked(rule.Name))
	}
}

type messageHandler struct {
	feature *Feature
	session EngineSession
}

func (h *messageHandler) OnMessage(message json.RawMessage, _ EngineSession) (any, error) {
	if err := h.feature.HandleMessage(message); err != nil {
		log.Error().Err(err).Str("engine", h.session.ID()).Msg("ads content message rejected")
		return nil, err
	}
	return Reply, nil
}
