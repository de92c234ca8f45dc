package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/stars-paywall/internal/model"
)

// MemoryStore хранит права доступа в памяти процесса. Данные теряются при перезапуске.
type MemoryStore struct {
	mu      sync.RWMutex
	granted map[model.Identity]time.Time
	now     func() time.Time
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		granted: make(map[model.Identity]time.Time),
		now:     time.Now,
	}
}

// Get возвращает право доступа пользователя.
func (s *MemoryStore) Get(_ context.Context, id model.Identity) (*model.Entitlement, error) {
	s.mu.RLock()
	grantedAt, ok := s.granted[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrEntitlementNotFound
	}
	return &model.Entitlement{Identity: id, Paid: true, GrantedAt: grantedAt}, nil
}

// MarkPaid отмечает пользователя оплатившим. Повторный вызов возвращает первую запись.
func (s *MemoryStore) MarkPaid(_ context.Context, id model.Identity) (*model.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grantedAt, ok := s.granted[id]
	if !ok {
		grantedAt = s.now().UTC()
		s.granted[id] = grantedAt
	}
	return &model.Entitlement{Identity: id, Paid: true, GrantedAt: grantedAt}, nil
}

// Close ничего не делает и нужен для единообразия с другими хранилищами.
func (s *MemoryStore) Close() error {
	return nil
}
