package chat

import (
	"context"
	"sync"
)

// MemoryCache is a map-backed Cache used when no redis address is
// configured. Chats are copied on the way in and out so callers never
// share message slices with the store.
type MemoryCache struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Chat
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{namespaces: make(map[string]map[string]Chat)}
}

func copyChat(c Chat) Chat {
	out := c
	out.Messages = make([]ChatMessage, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

func (m *MemoryCache) Get(_ context.Context, namespace, id string) (Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.namespaces[namespace][id]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return copyChat(c), nil
}

func (m *MemoryCache) Put(_ context.Context, namespace string, c Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Chat)
		m.namespaces[namespace] = ns
	}
	ns[c.ID] = copyChat(c)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, namespace, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces[namespace], id)
	return nil
}

func (m *MemoryCache) List(_ context.Context, namespace string) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.namespaces[namespace]
	out := make([]Chat, 0, len(ns))
	for _, c := range ns {
		out = append(out, copyChat(c))
	}
	return out, nil
}
