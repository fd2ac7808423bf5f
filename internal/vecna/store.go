package vecna

import (
	"sync"
	"time"

	"github.com/keshon/vecna/internal/chat"
)

// userState holds one user's adversarial state. Created lazily on the first
// message from a user, removed only when the session ends. All fields are
// guarded by mu.
type userState struct {
	UserID string

	mu            sync.Mutex
	state         ActivationState
	record        *ActivationRecord // open activation, nil when none
	cooldownUntil time.Time
	held          []chat.Message // messages withheld during a grip
	releaseSeq    int            // bumps per grip; guards exactly-once release
}

// Store keys userState by user id. Safe for concurrent use; per-user mutation
// happens under each entry's own mutex so users never block each other.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userState
}

func NewStore() *Store {
	return &Store{users: make(map[string]*userState)}
}

// User returns the state for userID, creating it if needed.
func (s *Store) User(userID string) *userState {
	s.mu.RLock()
	u := s.users[userID]
	s.mu.RUnlock()
	if u != nil {
		return u
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u = s.users[userID]; u != nil {
		return u
	}
	u = &userState{UserID: userID, state: StateIdle}
	s.users[userID] = u
	return u
}

// Remove drops a user's state. Called when the session object is destroyed.
func (s *Store) Remove(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// AllUserIDs returns the ids of all tracked users.
func (s *Store) AllUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids
}
