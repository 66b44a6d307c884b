package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"debate-arena/internal/status"
)

// Memory is a mutex-guarded in-process Store. It backs the service tests
// and doubles as the storage for single-node development runs.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subscribers map[string]map[int]func(Document)
	nextSub     int
	nextID      int
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		subscribers: make(map[string]map[int]func(Document)),
	}
}

// NewID returns a fresh document id. Production ids come from PocketBase;
// this only needs per-process uniqueness.
func (m *Memory) NewID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("mem-%06d", m.nextID)
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, status.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Set(_ context.Context, collection, id string, doc Document) error {
	m.mu.Lock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	m.collections[collection][id] = cloneDoc(doc)
	snapshot := cloneDoc(doc)
	m.mu.Unlock()

	m.notify(collection, id, snapshot)
	return nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields Document) error {
	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return status.ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	snapshot := cloneDoc(doc)
	m.mu.Unlock()

	m.notify(collection, id, snapshot)
	return nil
}

func (m *Memory) UpdateIf(_ context.Context, collection, id string, expectedVersion int64, fields Document) error {
	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return status.ErrNotFound
	}
	if docVersion(doc) != expectedVersion {
		m.mu.Unlock()
		return status.ErrConflict
	}
	for k, v := range fields {
		doc[k] = v
	}
	doc["version"] = expectedVersion + 1
	snapshot := cloneDoc(doc)
	m.mu.Unlock()

	m.notify(collection, id, snapshot)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, filters []Filter) ([]QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []QueryResult
	for id, doc := range m.collections[collection] {
		if matchesAll(doc, filters) {
			results = append(results, QueryResult{ID: id, Doc: cloneDoc(doc)})
		}
	}
	return results, nil
}

func (m *Memory) Subscribe(collection, id string, onChange func(Document)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := collection + "/" + id
	if m.subscribers[key] == nil {
		m.subscribers[key] = make(map[int]func(Document))
	}
	m.nextSub++
	sub := m.nextSub
	m.subscribers[key][sub] = onChange

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[key], sub)
	}
}

func (m *Memory) notify(collection, id string, doc Document) {
	m.mu.RLock()
	subs := make([]func(Document), 0, len(m.subscribers[collection+"/"+id]))
	for _, fn := range m.subscribers[collection+"/"+id] {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		go fn(cloneDoc(doc))
	}
}

func matchesAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(value any, f Filter) bool {
	switch f.Op {
	case "=":
		return equalValues(value, f.Value)
	case "!=":
		return !equalValues(value, f.Value)
	case ">=":
		return toFloat(value) >= toFloat(f.Value)
	case "<=":
		return toFloat(value) <= toFloat(f.Value)
	}
	return false
}

func equalValues(a, b any) bool {
	if fa, fb := toFloat(a), toFloat(b); fa != 0 || fb != 0 {
		if isNumeric(a) && isNumeric(b) {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func docVersion(doc Document) int64 {
	return int64(toFloat(doc["version"]))
}

// cloneDoc deep-copies via JSON so callers never share nested state with
// the stored document.
func cloneDoc(doc Document) Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		out := make(Document, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}
