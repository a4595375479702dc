package compliance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是进程内的实体存储，用于开发与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	entities []Entity
	byHash   map[string]struct{}
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]struct{}), nextID: 1, now: time.Now}
}

// CreateEntity 实现 Store。
func (s *MemoryStore) CreateEntity(_ context.Context, entity *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[entity.HashID]; exists {
		return ErrEntityExists
	}
	entity.ID = s.nextID
	entity.CreatedAt = s.now().UTC()
	s.nextID++
	s.byHash[entity.HashID] = struct{}{}
	s.entities = append(s.entities, *entity)
	return nil
}

// ListEntities 实现 Store，按创建时间倒序。
func (s *MemoryStore) ListEntities(context.Context) ([]Entity, error) {
	s.mu.RLock()
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
