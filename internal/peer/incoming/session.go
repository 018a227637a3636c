// Package incoming implements the receiving half of peer file transfer:
// upload sessions, the direct-write path, the durable inbox queue, and the
// processor that drains it.
package incoming

import (
	"sync"

	"github.com/google/uuid"

	"github.com/homebase-id/odin-core-sub020/internal/drive"
	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/peer"
)

// Part tags used in the temp store. Payload parts travel under their payload
// key; thumbnails under the payload key + dimensions.
const (
	PartInstructionSet = "transferinstructionset"
	PartMetadata       = "metadata"
)

// Session is one in-flight upload: the temp file its parts accumulate in,
// the instruction set received at start, and the part bookkeeping.
type Session struct {
	ID             uuid.UUID
	File           drive.InternalFileID
	InstructionSet *peer.TransferInstructionSet
	Collector      *PayloadCollector
}

// SessionStore holds in-flight sessions in memory. Sessions are ephemeral
// by contract: a restart drops them all and senders retry from the start.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*Session)}
}

// Put registers a session under its id.
func (s *SessionStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Get returns the session, or an UnknownSession fault when the id is stale.
func (s *SessionStore) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, faults.Client(faults.CodeUnknownSession, "no active transfer session with this id")
	}
	return sess, nil
}

// Remove drops the session. Removing an unknown id is a no-op.
func (s *SessionStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of in-flight sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
