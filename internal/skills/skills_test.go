package skills

import (
	"encoding/json"
	"fmt"
	"sync"
)

// memStorage is an in-memory Storage fake for reducer tests.
type memStorage struct {
	mu      sync.Mutex
	data    map[string]map[string][]byte
	failAdd bool
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string]map[string][]byte)}
}

func (m *memStorage) bucket(collection string) map[string][]byte {
	b, ok := m.data[collection]
	if !ok {
		b = make(map[string][]byte)
		m.data[collection] = b
	}
	return b
}

func (m *memStorage) Add(collection, id string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd {
		return fmt.Errorf("storage unavailable")
	}
	b := m.bucket(collection)
	if _, exists := b[id]; exists {
		return fmt.Errorf("duplicate id %s", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b[id] = data
	return nil
}

func (m *memStorage) Update(collection, id string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(collection)
	if _, exists := b[id]; !exists {
		return fmt.Errorf("record not found: %s", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b[id] = data
	return nil
}

func (m *memStorage) Delete(collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucket(collection), id)
	return nil
}

func (m *memStorage) Get(collection, id string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, exists := m.bucket(collection)[id]
	if !exists {
		return fmt.Errorf("record not found: %s", id)
	}
	return json.Unmarshal(data, v)
}

func (m *memStorage) GetAll(collection string, fn func(id string, data []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, data := range m.bucket(collection) {
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }
