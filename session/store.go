// Package session holds the signed-in identity and keeps it durable across
// restarts.
package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hospital-appointments/api"
)

// Durable record keys.
const (
	KeyUserID   = "currentUserId"
	KeyUsername = "currentUsername"
)

// Session is the client's record of who is signed in. The zero value means
// nobody is.
type Session struct {
	UserID   api.ID
	Username string
}

// Active reports whether a user is signed in.
func (s Session) Active() bool { return s.UserID != "" && s.Username != "" }

func (s Session) partial() bool { return (s.UserID == "") != (s.Username == "") }

// KV is the durable record the store writes through to.
type KV interface {
	Get(key string) (string, bool, error)
	Set(pairs map[string]string) error
	Delete(keys ...string) error
}

// Store owns the current Session. Set and Clear are the only mutators.
type Store struct {
	mu     sync.Mutex
	kv     KV
	logger *zap.Logger
	cur    Session
	subs   map[int]func(Session)
	nextID int
}

// Open restores a prior session from kv. A partial record is discarded.
func Open(kv KV, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{kv: kv, logger: logger, subs: make(map[int]func(Session))}

	id, hasID, err := kv.Get(KeyUserID)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	name, hasName, err := kv.Get(KeyUsername)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	restored := Session{UserID: api.ID(id), Username: name}
	switch {
	case !hasID && !hasName:
	case restored.Active():
		s.cur = restored
		logger.Info("session restored", zap.String("user_id", id))
	default:
		logger.Warn("discarding partial session record",
			zap.Bool("has_user_id", hasID), zap.Bool("has_username", hasName))
		if err := kv.Delete(KeyUserID, KeyUsername); err != nil {
			return nil, fmt.Errorf("discard partial session: %w", err)
		}
	}
	return s, nil
}

// Get returns the current session.
func (s *Store) Get() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Set persists sess and notifies subscribers.
func (s *Store) Set(sess Session) error {
	if !sess.Active() {
		if sess.partial() {
			return api.NewValidationError("session", "session needs both a user id and a username")
		}
		return api.NewValidationError("session", "empty session; use Clear to sign out")
	}

	s.mu.Lock()
	err := s.kv.Set(map[string]string{
		KeyUserID:   sess.UserID.String(),
		KeyUsername: sess.Username,
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	s.cur = sess
	subs := s.snapshotSubs()
	s.mu.Unlock()

	s.logger.Info("session set", zap.String("user_id", sess.UserID.String()))
	notify(subs, sess)
	return nil
}

// Clear removes the durable record entirely and notifies subscribers.
func (s *Store) Clear() error {
	s.mu.Lock()
	if err := s.kv.Delete(KeyUserID, KeyUsername); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear session: %w", err)
	}
	s.cur = Session{}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	s.logger.Info("session cleared")
	notify(subs, Session{})
	return nil
}

// Subscribe registers fn to run after every Set or Clear. It returns a
// function that removes the subscription.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// snapshotSubs returns subscribers in registration order. Caller holds mu.
func (s *Store) snapshotSubs() []func(Session) {
	out := make([]func(Session), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(Session), sess Session) {
	for _, fn := range subs {
		fn(sess)
	}
}
