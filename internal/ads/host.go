package ads

import (
	"context"
	"encoding/json"
)

// Identifiers shared with the web extension. They are stable across versions.
const (
	ExtensionID          = "mozacBrowserAds"
	ExtensionResourceURL = "resource://android/assets/extensions/ads/"
	MessageID            = "MozacBrowserAds"

	MessageURLKey  = "url"
	MessageURLsKey = "urls"
)

// EngineSession is the page-rendering context of a browser session.
type EngineSession interface {
	ID() string
}

// MessageHandler receives content messages sent by the extension's content
// script. The host transport requires a non-nil reply.
type MessageHandler interface {
	OnMessage(message json.RawMessage, source EngineSession) (any, error)
}

// Extension is the handle of an installed web extension.
type Extension interface {
	HasMessageHandler(es EngineSession, messageID string) bool
	RegisterMessageHandler(es EngineSession, messageID string, h MessageHandler)
}

// Installer installs web extensions into the host runtime. Exactly one of
// onSuccess or onError is called.
type Installer interface {
	InstallExtension(id, resourceURL string, allowContentMessaging bool,
		onSuccess func(ext Extension), onError func(id string, err error))
}

// Snapshot is a session and its current engine session. EngineSession is nil
// when the session has no page-rendering context.
type Snapshot struct {
	SessionID     string
	URL           string
	EngineSession EngineSession
}

// SessionStore publishes session snapshots. Implementations deliver a
// snapshot only when a session's engine-session identity changes, serialized
// per subscription. The channel is closed when ctx is done or the store is
// torn down.
type SessionStore interface {
	Subscribe(ctx context.Context) <-chan Snapshot
}
