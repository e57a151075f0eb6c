package telemetry

import (
	"sync"
	"time"
)

// Kind identifies one of the ad telemetry facts.
type Kind string

const (
	// KindSearchWithAds: a results page of a known provider contained ads.
	KindSearchWithAds Kind = "search_with_ads"
	// KindAdClicked: the user navigated into an ad from a provider's results page.
	KindAdClicked Kind = "ad_clicked"
)

// Event is a single telemetry fact about a provider.
type Event struct {
	Kind     Kind
	Provider string
	Time     time.Time
}

// SearchWithAds builds a KindSearchWithAds event for provider.
func SearchWithAds(provider string) Event {
	return Event{Kind: KindSearchWithAds, Provider: provider, Time: time.Now().UTC()}
}

// AdClicked builds a KindAdClicked event for provider.
func AdClicked(provider string) Event {
	return Event{Kind: KindAdClicked, Provider: provider, Time: time.Now().UTC()}
}

// Sink receives telemetry events. Track is fire-and-forget and must be safe
// for concurrent use.
type Sink interface {
	Track(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Track(ev Event) { f(ev) }

// Multi fans an event out to every sink in order. Nil entries are skipped.
type Multi []Sink

func (m Multi) Track(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Track(ev)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded for provider. An empty
// provider counts every provider.
func (r *Recorder) Count(kind Kind, provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && (provider == "" || ev.Provider == provider) {
			n++
		}
	}
	return n
}
