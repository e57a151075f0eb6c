package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hyperifyio/serpads/internal/ads"
	"github.com/hyperifyio/serpads/internal/search"
	"github.com/hyperifyio/serpads/internal/telemetry"
)

func recv(t *testing.T, ch <-chan ads.Snapshot) ads.Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed early")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return ads.Snapshot{}
}

func expectClosed(t *testing.T, ch <-chan ads.Snapshot) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if ok {
			t.Fatalf("unexpected snapshot %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed")
	}
}

func TestStore_PublishesOnlyEngineChanges(t *testing.T) {
	st := NewStore()
	if err := st.AddSession("s1", "about:blank"); err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	ch := st.Subscribe(context.Background())

	first := recv(t, ch)
	if first.SessionID != "s1" || first.EngineSession != nil {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	e1 := NewEngineSession("e1")
	_ = st.LinkEngine("s1", e1)
	_ = st.SetURL("s1", "https://www.google.com/search?q=x") // not published
	_ = st.LinkEngine("s1", e1)                              // same identity, not published
	_ = st.LinkEngine("s1", NewEngineSession("e2"))
	_ = st.UnlinkEngine("s1")

	want := []string{"e1", "e2", ""}
	for _, id := range want {
		s := recv(t, ch)
		got := ""
		if s.EngineSession != nil {
			got = s.EngineSession.ID()
		}
		if got != id {
			t.Fatalf("got engine %q want %q", got, id)
		}
	}
	st.Close()
	expectClosed(t, ch)
}

func TestStore_Errors(t *testing.T) {
	st := NewStore()
	_ = st.AddSession("s1", "")
	if err := st.AddSession("s1", ""); err == nil {
		t.Fatalf("expected duplicate session error")
	}
	if err := st.SetURL("nope", "x"); err == nil {
		t.Fatalf("expected unknown session error")
	}
	st.RemoveSession("s1")
	st.RemoveSession("s1")
	if _, ok := st.Session("s1"); ok {
		t.Fatalf("session should be gone")
	}
}

func TestStore_SubscribeAfterCloseDeliversThenCloses(t *testing.T) {
	st := NewStore()
	_ = st.AddSession("s1", "")
	st.Close()
	ch := st.Subscribe(context.Background())
	if s := recv(t, ch); s.SessionID != "s1" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	expectClosed(t, ch)
}

func TestStore_CancelClosesSubscription(t *testing.T) {
	st := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	ch := st.Subscribe(ctx)
	cancel()
	expectClosed(t, ch)
}

func TestExtension_Deliver(t *testing.T) {
	r := &Runtime{}
	var got ads.Extension
	r.InstallExtension("ext", "resource://x/", false, func(e ads.Extension) { got = e }, func(string, error) {
		t.Fatalf("install should succeed")
	})
	ext := got.(*Extension)
	es := NewEngineSession("e1")
	if _, err := ext.Deliver(es, "m", json.RawMessage(`{}`)); !errors.Is(err, ErrMessagingDisabled) {
		t.Fatalf("expected ErrMessagingDisabled, got %v", err)
	}
	ext.AllowContentMessaging = true
	if _, err := ext.Deliver(es, "m", json.RawMessage(`{}`)); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestRuntime_InstallValidation(t *testing.T) {
	r := &Runtime{}
	var errs []error
	onErr := func(_ string, err error) { errs = append(errs, err) }
	onOK := func(ads.Extension) {}
	r.InstallExtension("", "resource://x/", true, onOK, onErr)
	r.InstallExtension("x", "https://x/", true, onOK, onErr)
	r.FailInstall = errors.New("boom")
	r.InstallExtension("x", "resource://x/", true, onOK, onErr)
	if len(errs) != 3 {
		t.Fatalf("expected 3 install errors, got %d", len(errs))
	}
}

// End to end: the feature attaches through the in-memory browser and
// content messages produce telemetry.
func TestFeature_EndToEnd(t *testing.T) {
	b := NewBrowser()
	_ = b.Store.AddSession("s1", "https://www.google.com/search?q=shoes")
	_ = b.Store.LinkEngine("s1", NewEngineSession("e1"))

	var rec telemetry.Recorder
	f := ads.New(b.Runtime, b.Store, &rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	ext, ok := b.Runtime.Extension(ads.ExtensionID)
	if !ok {
		t.Fatalf("ads extension not installed")
	}
	waitFor(t, func() bool { return ext.HandlerCount() == 1 })

	_ = b.Store.AddSession("s2", "https://search.yahoo.com/search?p=x")
	_ = b.Store.LinkEngine("s2", NewEngineSession("e2"))
	waitFor(t, func() bool { return ext.HandlerCount() == 2 })

	msg, _ := ads.Message{
		URL:  "https://www.google.com/search?q=shoes",
		URLs: []string{"https://www.googleadservices.com/pagead/aclk?sa=L", "https://example.com/shoes"},
	}.Encode()
	reply, err := b.SendAdsMessage("s1", msg)
	if err != nil {
		t.Fatalf("SendAdsMessage: %v", err)
	}
	if reply != ads.Reply {
		t.Fatalf("unexpected reply %v", reply)
	}

	yahoo, _ := ads.Message{URL: "https://search.yahoo.com/search?p=x", URLs: []string{"https://www.googleadservices.com/pagead/aclk"}}.Encode()
	if _, err := b.SendAdsMessage("s2", yahoo); err != nil {
		t.Fatalf("SendAdsMessage: %v", err)
	}

	if _, err := b.SendAdsMessage("s1", json.RawMessage(`{"url":"https://www.google.com/search?q=shoes"}`)); !errors.Is(err, ads.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Kind != telemetry.KindSearchWithAds || evs[0].Provider != search.Google {
		t.Fatalf("unexpected events: %+v", evs)
	}

	b.Store.Close()
	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("feature did not stop after store close")
	}
	if ext.HandlerCount() != 2 {
		t.Fatalf("handlers must stay registered after stop")
	}
}

func TestBrowser_SendErrors(t *testing.T) {
	b := NewBrowser()
	if _, err := b.SendAdsMessage("missing", nil); err == nil {
		t.Fatalf("expected unknown session error")
	}
	_ = b.Store.AddSession("s1", "")
	if _, err := b.SendAdsMessage("s1", nil); err == nil {
		t.Fatalf("expected no engine session error")
	}
	_ = b.Store.LinkEngine("s1", NewEngineSession("e1"))
	if _, err := b.SendAdsMessage("s1", nil); err == nil {
		t.Fatalf("expected extension not installed error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
