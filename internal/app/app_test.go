package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperifyio/serpads/internal/ads"
	"github.com/hyperifyio/serpads/internal/search"
	"github.com/hyperifyio/serpads/internal/telemetry"
)

const serpHTML = `<!doctype html>
<html><head><title>shoes - Google Search</title></head>
<body>
  <a href="https://www.googleadservices.com/pagead/aclk?sa=L&amp;ai=1">Sponsored</a>
  <a href="https://example.com/shoes">Shoes</a>
</body></html>`

const scenario = `# google results page with ads, then an ad click on duckduckgo
{"op":"session","session":"s1","url":"https://www.google.com/search?q=shoes"}
{"op":"engine","session":"s1","engine":"e1"}
{"op":"page","session":"s1","html":"serp.html"}
{"op":"message","session":"s1","payload":{"url":"https://www.google.com/search?q=shoes"}}

{"op":"session","session":"s2","url":"https://search.yahoo.com/search?p=x"}
{"op":"engine","session":"s2","engine":"e2"}
{"op":"message","session":"s2","payload":{"url":"https://search.yahoo.com/search?p=x","urls":["https://www.googleadservices.com/pagead/aclk"]}}

{"op":"navigate","session":"s2","url":"https://duckduckgo.com/?q=x"}
{"op":"click","session":"s2","path":["https://duckduckgo.com/?q=x","https://duckduckgo.com/y.js?ad=1"]}
{"op":"session","session":"s3","url":""}
{"op":"click","session":"s3","path":["https://duckduckgo.com/y.js?ad=1"]}
{"op":"unlink","session":"s1"}
{"op":"close","session":"s2"}
`

func writeScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "serp.html"), []byte(serpHTML), 0o644); err != nil {
		t.Fatalf("write html: %v", err)
	}
	p := filepath.Join(dir, "scenario.jsonl")
	if err := os.WriteFile(p, []byte(scenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return p
}

func TestReadScenario(t *testing.T) {
	steps, err := ReadScenario(strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("ReadScenario: %v", err)
	}
	if len(steps) != 13 {
		t.Fatalf("expected 13 steps, got %d", len(steps))
	}
	if steps[2].Op != "page" || steps[2].HTML != "serp.html" {
		t.Fatalf("unexpected step: %+v", steps[2])
	}

	if _, err := ReadScenario(strings.NewReader(`{"session":"s1"}`)); err == nil {
		t.Fatalf("expected missing op error")
	}
	if _, err := ReadScenario(strings.NewReader(`{"op":`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApp_RunReplaysScenario(t *testing.T) {
	p := writeScenario(t)
	out := filepath.Join(t.TempDir(), "events.jsonl")

	ctx := context.Background()
	a, err := New(ctx, Config{ScenarioPath: p, EventsOut: out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	a.Close()

	rec := a.Recorder()
	if got := rec.Count(telemetry.KindSearchWithAds, search.Google); got != 1 {
		t.Fatalf("search_with_ads{google}=%d, want 1", got)
	}
	if got := rec.Count(telemetry.KindSearchWithAds, search.Yahoo); got != 0 {
		t.Fatalf("yahoo must never report ads, got %d", got)
	}
	if got := rec.Count(telemetry.KindAdClicked, search.DuckDuckGo); got != 1 {
		t.Fatalf("ad_clicked{duckduckgo}=%d, want 1", got)
	}
	if got := len(rec.Events()); got != 2 {
		t.Fatalf("expected 2 events total, got %d", got)
	}

	recs, err := telemetry.ReadRecords(out)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records on disk, got %d", len(recs))
	}

	if err := testutil.GatherAndCompare(a.Registry(), strings.NewReader(`
# HELP serpads_ad_clicked_total Ad clicks attributed to a known provider
# TYPE serpads_ad_clicked_total counter
serpads_ad_clicked_total{provider="duckduckgo"} 1
`), "serpads_ad_clicked_total"); err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}
}

func TestReplayer_CountsRejectedMessages(t *testing.T) {
	p := writeScenario(t)
	a, err := New(context.Background(), Config{ScenarioPath: p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	steps, err := ReadScenario(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadScenario: %v", err)
	}
	r := &Replayer{Browser: a.browser, Feature: a.feature, BaseDir: filepath.Dir(p)}
	sum, err := r.Replay(context.Background(), steps)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sum.Steps != 13 || sum.Messages != 2 || sum.Rejected != 1 || sum.Clicks != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestReplayer_Errors(t *testing.T) {
	a, err := New(context.Background(), Config{ScenarioPath: "unused"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	r := &Replayer{Browser: a.browser, Feature: a.feature}

	_, err = r.Replay(context.Background(), []Step{{Op: "teleport"}})
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
	if _, err := r.Replay(context.Background(), []Step{{Op: "engine", Session: "nope", Engine: "e"}}); err == nil {
		t.Fatalf("expected unknown session error")
	}
	if _, err := r.Replay(context.Background(), []Step{{Op: "page", Session: "nope"}}); err == nil {
		t.Fatalf("expected page error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Replay(ctx, []Step{{Op: "session", Session: "x"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNew_ExtraProviders(t *testing.T) {
	dir := t.TempDir()
	prov := filepath.Join(dir, "providers.yaml")
	body := `
- name: ecosia
  urlPattern: '^https:\/\/www\.ecosia\.org\/search'
  extraAdServerPatterns: ['^https:\/\/www\.bing\.com\/aclick']
`
	if err := os.WriteFile(prov, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a, err := New(context.Background(), Config{ScenarioPath: "unused", ProvidersPath: prov})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Catalog().Len() != 6 {
		t.Fatalf("expected 6 providers, got %d", a.Catalog().Len())
	}
	a.feature.TrackAdClick("https://www.ecosia.org/search?q=x", []string{"https://www.bing.com/aclick?u=1"})
	if got := a.Recorder().Count(telemetry.KindAdClicked, "ecosia"); got != 1 {
		t.Fatalf("expected ecosia click, got %d", got)
	}

	if _, err := New(context.Background(), Config{ProvidersPath: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing providers file")
	}
}

func TestApp_ServesMetrics(t *testing.T) {
	p := writeScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, Config{ScenarioPath: p, MetricsAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Recorder().Count(telemetry.KindAdClicked, "") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `serpads_search_with_ads_total{provider="google"} 1`) {
		t.Fatalf("metrics body missing google counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestConstantsMatchExtension(t *testing.T) {
	if ads.ExtensionID != "mozacBrowserAds" || ads.MessageID != "MozacBrowserAds" {
		t.Fatalf("extension identifiers changed")
	}
	if ads.ExtensionResourceURL != "resource://android/assets/extensions/ads/" {
		t.Fatalf("extension resource changed")
	}
}
