package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperifyio/serpads/internal/ads"
)

// Session is a browser session as held by the Store.
type Session struct {
	ID     string
	URL    string
	Engine *EngineSession
}

func (s Session) snapshot() ads.Snapshot {
	snap := ads.Snapshot{SessionID: s.ID, URL: s.URL}
	if s.Engine != nil {
		snap.EngineSession = s.Engine
	}
	return snap
}

func (s Session) engineID() string {
	if s.Engine == nil {
		return ""
	}
	return s.Engine.ID()
}

// Store is an in-memory browser session store. Subscribers only see a
// session again when its engine session identity changes; URL updates alone
// are not published.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	subs     map[*subscription]struct{}
	closed   bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		subs:     make(map[*subscription]struct{}),
	}
}

// AddSession creates a session without an engine session.
func (st *Store) AddSession(id, url string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; ok {
		return fmt.Errorf("session %q already exists", id)
	}
	s := &Session{ID: id, URL: url}
	st.sessions[id] = s
	st.order = append(st.order, id)
	st.publishLocked(*s)
	return nil
}

// SetURL updates the session URL.
func (st *Store) SetURL(id, url string) error {
	return st.update(id, func(s *Session) { s.URL = url })
}

// LinkEngine attaches an engine session to the session.
func (st *Store) LinkEngine(id string, es *EngineSession) error {
	return st.update(id, func(s *Session) { s.Engine = es })
}

// UnlinkEngine detaches the engine session, if any.
func (st *Store) UnlinkEngine(id string) error {
	return st.update(id, func(s *Session) { s.Engine = nil })
}

// RemoveSession forgets the session.
func (st *Store) RemoveSession(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return
	}
	delete(st.sessions, id)
	for i, sid := range st.order {
		if sid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	for sub := range st.subs {
		sub.forget(id)
	}
}

// Session returns a copy of the session.
func (st *Store) Session(id string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (st *Store) update(id string, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	fn(s)
	st.publishLocked(*s)
	return nil
}

func (st *Store) publishLocked(s Session) {
	for sub := range st.subs {
		sub.observe(s)
	}
}

// Subscribe implements ads.SessionStore. The first snapshots describe the
// sessions present at subscription time.
func (st *Store) Subscribe(ctx context.Context) <-chan ads.Snapshot {
	sub := &subscription{
		last: make(map[string]string),
		wake: make(chan struct{}, 1),
		out:  make(chan ads.Snapshot),
	}
	st.mu.Lock()
	for _, id := range st.order {
		sub.observe(*st.sessions[id])
	}
	if st.closed {
		sub.stop()
	} else {
		st.subs[sub] = struct{}{}
	}
	st.mu.Unlock()

	go func() {
		sub.run(ctx)
		st.mu.Lock()
		delete(st.subs, sub)
		st.mu.Unlock()
	}()
	return sub.out
}

// Close ends every subscription after pending snapshots are delivered.
func (st *Store) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	for sub := range st.subs {
		sub.stop()
	}
}

type subscription struct {
	mu      sync.Mutex
	queue   []ads.Snapshot
	last    map[string]string
	stopped bool

	wake chan struct{}
	out  chan ads.Snapshot
}

func (s *subscription) observe(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sess.engineID()
	if prev, seen := s.last[sess.ID]; seen && prev == id {
		return
	}
	s.last[sess.ID] = id
	s.queue = append(s.queue, sess.snapshot())
	s.signal()
}

func (s *subscription) forget(sessionID string) {
	s.mu.Lock()
	delete(s.last, sessionID)
	s.mu.Unlock()
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.signal()
	s.mu.Unlock()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		stopped := s.stopped
		s.mu.Unlock()

		for _, snap := range pending {
			select {
			case s.out <- snap:
			case <-ctx.Done():
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		if stopped {
			return
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
