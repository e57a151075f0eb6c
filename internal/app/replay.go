package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpads/internal/ads"
	"github.com/hyperifyio/serpads/internal/extract"
	"github.com/hyperifyio/serpads/internal/host"
)

// Step is one line of a replay scenario.
//
//	{"op":"session","session":"s1","url":"https://..."}
//	{"op":"engine","session":"s1","engine":"e1"}
//	{"op":"navigate","session":"s1","url":"https://..."}
//	{"op":"page","session":"s1","html":"serp.html"}
//	{"op":"message","session":"s1","payload":{"url":"...","urls":["..."]}}
//	{"op":"click","session":"s1","path":["...","..."]}
//	{"op":"unlink","session":"s1"}
//	{"op":"close","session":"s1"}
type Step struct {
	Op      string          `json:"op"`
	Session string          `json:"session"`
	URL     string          `json:"url,omitempty"`
	Engine  string          `json:"engine,omitempty"`
	HTML    string          `json:"html,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Path    []string        `json:"path,omitempty"`
}

// Summary counts what a replay did.
type Summary struct {
	Steps    int
	Messages int
	Rejected int
	Clicks   int
}

// ErrUnknownOp is returned for scenario steps with an unrecognized op.
var ErrUnknownOp = errors.New("unknown scenario op")

// ReadScenario parses a JSON Lines scenario. Blank lines and lines starting
// with '#' are ignored.
func ReadScenario(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var s Step
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("scenario line %d: %w", line, err)
		}
		if s.Op == "" {
			return nil, fmt.Errorf("scenario line %d: missing op", line)
		}
		steps = append(steps, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return steps, nil
}

// Replayer drives a host browser and the ads feature through scenario steps.
type Replayer struct {
	Browser   *host.Browser
	Feature   *ads.Feature
	Extractor extract.Extractor
	// BaseDir resolves relative html paths.
	BaseDir string
	// AttachTimeout bounds the wait for a handler after an engine is linked.
	AttachTimeout time.Duration
}

// Replay runs steps in order. Malformed content messages are counted and
// logged; any other failing step aborts the replay.
func (r *Replayer) Replay(ctx context.Context, steps []Step) (Summary, error) {
	var sum Summary
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := r.step(ctx, s, &sum); err != nil {
			return sum, fmt.Errorf("step %d (%s): %w", i+1, s.Op, err)
		}
		sum.Steps++
	}
	return sum, nil
}

func (r *Replayer) step(ctx context.Context, s Step, sum *Summary) error {
	st := r.Browser.Store
	switch s.Op {
	case "session":
		return st.AddSession(s.Session, s.URL)
	case "navigate":
		return st.SetURL(s.Session, s.URL)
	case "engine":
		if s.Engine == "" {
			return errors.New("engine id is empty")
		}
		es := host.NewEngineSession(s.Engine)
		if err := st.LinkEngine(s.Session, es); err != nil {
			return err
		}
		return r.waitAttached(ctx, es)
	case "unlink":
		return st.UnlinkEngine(s.Session)
	case "close":
		st.RemoveSession(s.Session)
		return nil
	case "message":
		return r.send(s.Session, s.Payload, sum)
	case "page":
		return r.page(s, sum)
	case "click":
		sess, ok := st.Session(s.Session)
		if !ok && s.URL == "" {
			return fmt.Errorf("unknown session %q", s.Session)
		}
		sessionURL := sess.URL
		if s.URL != "" {
			sessionURL = s.URL
		}
		r.Feature.TrackAdClick(sessionURL, s.Path)
		sum.Clicks++
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
}

func (r *Replayer) page(s Step, sum *Summary) error {
	sess, ok := r.Browser.Store.Session(s.Session)
	if !ok {
		return fmt.Errorf("unknown session %q", s.Session)
	}
	p := s.HTML
	if p == "" {
		return errors.New("page step needs an html path")
	}
	if !filepath.IsAbs(p) && r.BaseDir != "" {
		p = filepath.Join(r.BaseDir, p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	ex := r.Extractor
	if ex == nil {
		ex = extract.AnchorExtractor{}
	}
	page := ex.Extract(b, sess.URL)
	log.Debug().Str("session", s.Session).Int("links", len(page.Links)).Str("title", page.Title).Msg("page extracted")
	msg, err := ads.Message{URL: sess.URL, URLs: page.Links}.Encode()
	if err != nil {
		return err
	}
	return r.send(s.Session, msg, sum)
}

func (r *Replayer) send(sessionID string, payload json.RawMessage, sum *Summary) error {
	_, err := r.Browser.SendAdsMessage(sessionID, payload)
	if errors.Is(err, ads.ErrMalformedMessage) {
		log.Warn().Err(err).Str("session", sessionID).Msg("content message rejected")
		sum.Rejected++
		return nil
	}
	if err != nil {
		return err
	}
	sum.Messages++
	return nil
}

// waitAttached blocks until the ads handler is registered for es. It returns
// immediately when the extension is not installed.
func (r *Replayer) waitAttached(ctx context.Context, es *host.EngineSession) error {
	ext, ok := r.Browser.Runtime.Extension(ads.ExtensionID)
	if !ok {
		return nil
	}
	timeout := r.AttachTimeout
	if timeout <= 0 {
		timeout = defaultAttachTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for !ext.HasMessageHandler(es, ads.MessageID) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("no ads handler for engine %q after %s", es.ID(), timeout)
		case <-tick.C:
		}
	}
	return nil
}
