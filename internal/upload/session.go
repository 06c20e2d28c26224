package upload

import (
	"sync"
	"time"
)

// ChunkRef records where one received chunk's bytes live on the temp
// filesystem and how big it is.
type ChunkRef struct {
	Path string
	Size int64
}

// Session tracks chunk receipt for one in-progress chunked upload. The
// chunk map is sparse: indices arrive in any order and may be re-uploaded.
type Session struct {
	ID           string
	FileName     string
	DeclaredSize int64
	TotalChunks  int
	Metadata     map[string]string
	OwnerID      uint
	TempDir      string
	Chunks       map[int]ChunkRef
	CreatedAt    time.Time
}

// SessionStore is the explicitly owned, injectable home for upload sessions.
// Sessions are not durable across restarts; the age-based sweeper bounds how
// long orphans can accumulate. All access goes through the store mutex.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Put registers a new session.
func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// SetChunk records a received chunk, overwriting any prior entry at that
// index. Returns false if the session does not exist.
func (s *SessionStore) SetChunk(id string, index int, ref ChunkRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Chunks[index] = ref
	return true
}

// Snapshot returns a copy of the session with its own chunk map, safe to
// read while other requests keep mutating the live session.
func (s *SessionStore) Snapshot(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	copied := *sess
	copied.Chunks = make(map[int]ChunkRef, len(sess.Chunks))
	for i, ref := range sess.Chunks {
		copied.Chunks[i] = ref
	}
	return copied, true
}

// Remove claims and deletes the session. Exactly one caller wins a race to
// remove the same id; the rest see ok == false.
func (s *SessionStore) Remove(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, id)
	return *sess, true
}

// ExpiredIDs returns the ids of sessions older than maxAge. The result is a
// snapshot so the caller can sweep without holding the store lock.
func (s *SessionStore) ExpiredIDs(maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
