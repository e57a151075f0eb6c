package host

import (
	"encoding/json"
	"fmt"

	"github.com/hyperifyio/serpads/internal/ads"
)

// Browser ties the extension runtime to the session store so content
// messages can be sent on behalf of a session.
type Browser struct {
	Runtime *Runtime
	Store   *Store
}

// NewBrowser returns a browser with an empty runtime and store.
func NewBrowser() *Browser {
	return &Browser{Runtime: &Runtime{}, Store: NewStore()}
}

// SendContentMessage delivers message from the content script of extension
// extID running in the session's current engine session.
func (b *Browser) SendContentMessage(sessionID, extID, messageID string, message json.RawMessage) (any, error) {
	s, ok := b.Store.Session(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}
	if s.Engine == nil {
		return nil, fmt.Errorf("session %q has no engine session", sessionID)
	}
	ext, ok := b.Runtime.Extension(extID)
	if !ok {
		return nil, fmt.Errorf("extension %q not installed", extID)
	}
	return ext.Deliver(s.Engine, messageID, message)
}

// SendAdsMessage is SendContentMessage for the ads extension.
func (b *Browser) SendAdsMessage(sessionID string, message json.RawMessage) (any, error) {
	return b.SendContentMessage(sessionID, ads.ExtensionID, ads.MessageID, message)
}
