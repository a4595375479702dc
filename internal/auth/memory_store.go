package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps users in process memory, for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User
	nextID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User), nextID: 1}
}

// FindUserByUsername implements Store.
func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.TrimSpace(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// CreateUser implements Store. It assigns ID and CreatedAt on user.
func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return ErrUserExists
	}
	user.ID = s.nextID
	user.CreatedAt = time.Now().UTC()
	s.nextID++
	s.users[user.Username] = *user
	return nil
}
