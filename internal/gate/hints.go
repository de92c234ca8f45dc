package gate

import (
	"sync"

	"github.com/mmeshcher/stars-paywall/internal/model"
)

// HintCache хранит локальные подсказки «уже оплачено» по идентификатору.
// Подсказка одного пользователя никогда не открывает доступ другому.
// Ключ не проверен подписью, поэтому подсказка не заменяет ответ сервера.
type HintCache interface {
	Paid(id model.Identity) bool
	Remember(id model.Identity)
	Forget(id model.Identity)
}

// MemoryHints реализует HintCache в памяти и безопасен для конкурентного использования.
type MemoryHints struct {
	mu  sync.RWMutex
	ids map[model.Identity]struct{}
}

func NewMemoryHints() *MemoryHints {
	return &MemoryHints{ids: make(map[model.Identity]struct{})}
}

func (h *MemoryHints) Paid(id model.Identity) bool {
	if id == "" {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.ids[id]
	return ok
}

func (h *MemoryHints) Remember(id model.Identity) {
	if id == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids[id] = struct{}{}
}

func (h *MemoryHints) Forget(id model.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.ids, id)
}
