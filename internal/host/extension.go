package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperifyio/serpads/internal/ads"
)

var (
	// ErrNoHandler is returned by Deliver when nothing is registered for the
	// engine session and message id.
	ErrNoHandler = errors.New("no message handler registered")
	// ErrMessagingDisabled is returned by Deliver for extensions installed
	// without content messaging.
	ErrMessagingDisabled = errors.New("content messaging not allowed")
	// ErrNilReply is returned by Deliver when a handler replies with nil.
	ErrNilReply = errors.New("message handler returned nil reply")
)

// EngineSession is an in-memory page-rendering context.
type EngineSession struct {
	id string
}

// NewEngineSession returns an engine session with the given identity.
func NewEngineSession(id string) *EngineSession { return &EngineSession{id: id} }

func (e *EngineSession) ID() string { return e.id }

// Runtime installs extensions in memory.
type Runtime struct {
	// FailInstall, when set, makes every install fail with this error.
	FailInstall error

	mu         sync.Mutex
	extensions map[string]*Extension
}

// InstallExtension implements ads.Installer. Callbacks run synchronously.
func (r *Runtime) InstallExtension(id, resourceURL string, allowContentMessaging bool,
	onSuccess func(ads.Extension), onError func(string, error)) {
	ext, err := r.install(id, resourceURL, allowContentMessaging)
	if err != nil {
		if onError != nil {
			onError(id, err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(ext)
	}
}

func (r *Runtime) install(id, resourceURL string, allowContentMessaging bool) (*Extension, error) {
	if r.FailInstall != nil {
		return nil, r.FailInstall
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("extension id is empty")
	}
	if !strings.HasPrefix(resourceURL, "resource://") {
		return nil, fmt.Errorf("unsupported extension resource %q", resourceURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extensions == nil {
		r.extensions = make(map[string]*Extension)
	}
	if ext, ok := r.extensions[id]; ok {
		return ext, nil
	}
	ext := &Extension{ID: id, ResourceURL: resourceURL, AllowContentMessaging: allowContentMessaging}
	r.extensions[id] = ext
	return ext, nil
}

// Extension returns an installed extension by id.
func (r *Runtime) Extension(id string) (*Extension, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ext, ok := r.extensions[id]
	return ext, ok
}

// Extension is an installed extension holding per-engine-session message
// handlers keyed by message id.
type Extension struct {
	ID                    string
	ResourceURL           string
	AllowContentMessaging bool

	mu       sync.Mutex
	handlers map[string]map[string]ads.MessageHandler
}

func (e *Extension) HasMessageHandler(es ads.EngineSession, messageID string) bool {
	_, ok := e.handler(es, messageID)
	return ok
}

// RegisterMessageHandler stores h, replacing any previous handler.
func (e *Extension) RegisterMessageHandler(es ads.EngineSession, messageID string, h ads.MessageHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string]map[string]ads.MessageHandler)
	}
	byID := e.handlers[es.ID()]
	if byID == nil {
		byID = make(map[string]ads.MessageHandler)
		e.handlers[es.ID()] = byID
	}
	byID[messageID] = h
}

func (e *Extension) handler(es ads.EngineSession, messageID string) (ads.MessageHandler, bool) {
	if es == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handlers[es.ID()][messageID]
	return h, ok
}

// HandlerCount returns the number of registered handlers across sessions.
func (e *Extension) HandlerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, byID := range e.handlers {
		n += len(byID)
	}
	return n
}

// Deliver routes a content message to the handler registered for es.
func (e *Extension) Deliver(es ads.EngineSession, messageID string, message json.RawMessage) (any, error) {
	if !e.AllowContentMessaging {
		return nil, ErrMessagingDisabled
	}
	h, ok := e.handler(es, messageID)
	if !ok {
		return nil, ErrNoHandler
	}
	reply, err := h.OnMessage(message, es)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrNilReply
	}
	return reply, nil
}
