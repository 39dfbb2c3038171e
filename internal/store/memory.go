package store

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// putMode says whether a write expects the key to be absent or present.
type putMode int

const (
	putCreate putMode = iota
	putUpdate
)

func (p putMode) check(exists bool) error {
	switch {
	case p == putCreate && exists:
		return ErrAlreadyExists
	case p == putUpdate && !exists:
		return ErrNotFound
	}
	return nil
}

func (p putMode) event() v1alpha1.EventType {
	if p == putCreate {
		return v1alpha1.EventAdded
	}
	return v1alpha1.EventModified
}

// MemoryStore keeps JSON documents in a map. Used by tests and one-shot
// CLI runs; everything is lost on Close.
type MemoryStore struct {
	watchHub

	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string][]byte{}}
}

func (m *MemoryStore) Create(key string, value interface{}) error {
	return m.put(key, value, putCreate)
}

func (m *MemoryStore) Update(key string, value interface{}) error {
	return m.put(key, value, putUpdate)
}

func (m *MemoryStore) put(key string, value interface{}, mode putMode) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	_, exists := m.docs[key]
	if err := mode.check(exists); err != nil {
		m.mu.Unlock()
		return err
	}
	m.docs[key] = raw
	m.mu.Unlock()

	m.notify(mode.event(), key, value)
	return nil
}

func (m *MemoryStore) Modify(key string, target interface{}, mutate func() error) error {
	m.mu.Lock()
	raw, ok := m.docs[key]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, target); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := mutate(); err != nil {
		m.mu.Unlock()
		return err
	}
	next, err := json.Marshal(target)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.docs[key] = next
	m.mu.Unlock()

	m.notify(v1alpha1.EventModified, key, target)
	return nil
}

func (m *MemoryStore) Get(key string, target interface{}) error {
	m.mu.RLock()
	raw, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	raw, ok := m.docs[key]
	delete(m.docs, key)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	var last interface{}
	_ = json.Unmarshal(raw, &last)
	m.notify(v1alpha1.EventDeleted, key, last)
	return nil
}

func (m *MemoryStore) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		target := factory()
		if err := json.Unmarshal(m.docs[k], target); err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.closeAll()
	m.mu.Lock()
	m.docs = map[string][]byte{}
	m.mu.Unlock()
	return nil
}
