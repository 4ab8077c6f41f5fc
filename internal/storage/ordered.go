package storage

import (
	"bytes"
	"encoding/json"
)

// OrderedMap is a string-keyed collection preserving insertion order. Multi-
// load results use it so callers get records back in the order they asked
// for, and so the JSON projection of the result keeps that order too.
type OrderedMap[E any] struct {
	keys   []string
	values map[string]E
}

func NewOrderedMap[E any]() *OrderedMap[E] {
	return &OrderedMap[E]{values: make(map[string]E)}
}

// Set inserts or overwrites a value. A key keeps the position of its first
// insertion.
func (m *OrderedMap[E]) Set(key string, value E) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *OrderedMap[E]) Get(key string) (E, bool) {
	value, found := m.values[key]
	return value, found
}

// Keys returns the keys in insertion order.
func (m *OrderedMap[E]) Keys() []string {
	return m.keys
}

// Values returns the values in insertion order.
func (m *OrderedMap[E]) Values() []E {
	out := make([]E, 0, len(m.keys))
	for _, key := range m.keys {
		out = append(out, m.values[key])
	}
	return out
}

func (m *OrderedMap[E]) Len() int {
	return len(m.keys)
}

func (m *OrderedMap[E]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valueBytes, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
