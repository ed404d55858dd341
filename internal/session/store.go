// Package session tracks conversation state between generation requests: an
// ordered message history, attached tool/resource servers, and usage
// timestamps. Sessions are created on first use and retained until closed or
// evicted as idle.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a session's ordered history.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is one logical conversation.
type Session struct {
	ID        string
	Messages  []Message
	Servers   []string
	CreatedAt time.Time
	LastUsed  time.Time
}

// Store holds sessions in memory, bounded by idle eviction.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxIdle  time.Duration
	now      func() time.Time
}

// NewStore builds a store evicting sessions idle longer than maxIdle
// (0 disables eviction).
func NewStore(maxIdle time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		maxIdle:  maxIdle,
		now:      time.Now,
	}
}

// Create makes a new session with a generated id.
func (s *Store) Create() Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		LastUsed:  now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return snapshot(sess)
}

// Get returns a copy of the session with id, updating its last-used time.
// Copies keep callers isolated from concurrent appends.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	sess.LastUsed = s.now()
	return snapshot(sess), true
}

// GetOrCreate returns the existing session or creates one when id is empty
// or unknown. Sessions are created on the first request of a conversation.
func (s *Store) GetOrCreate(id string) Session {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess
		}
	}
	return s.Create()
}

// Append adds a message to the session's ordered history.
func (s *Store) Append(id string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if msg.At.IsZero() {
		msg.At = s.now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastUsed = s.now()
	return true
}

// AttachServer records a tool/resource server on the session.
func (s *Store) AttachServer(id, server string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Servers = append(sess.Servers, server)
	sess.LastUsed = s.now()
	return true
}

// Close removes a session explicitly.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns a snapshot of all sessions (copies, oldest-created first not
// guaranteed; callers sort as needed).
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, snapshot(sess))
	}
	return out
}

// snapshot copies a session, including its message and server slices, so the
// result can be read without the store lock.
func snapshot(sess *Session) Session {
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	cp.Servers = append([]string(nil), sess.Servers...)
	return cp
}

// EvictIdle removes sessions idle longer than the configured window and
// returns how many were dropped.
func (s *Store) EvictIdle() int {
	if s.maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.LastUsed.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
