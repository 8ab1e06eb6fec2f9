package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// OrderedMap is a string map that remembers insertion order. Pattern lookups
// walk entries in this order, so the first registered pattern wins.
// Updating an existing key keeps its position. Not safe for concurrent use.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// NewOrderedMap returns an empty map
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]string)}
}

// OrderedFrom builds a map from alternating key, value arguments
func OrderedFrom(kv ...string) *OrderedMap {
	m := NewOrderedMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

func (m *OrderedMap) init() {
	if m.values == nil {
		m.values = make(map[string]string)
	}
}

// Len returns the number of entries; a nil map is empty
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value for key
func (m *OrderedMap) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present
func (m *OrderedMap) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set inserts or updates key
func (m *OrderedMap) Set(key, value string) {
	m.init()
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// PutIfAbsent sets key only when it is not present and reports whether it did
func (m *OrderedMap) PutIfAbsent(key, value string) bool {
	if m.Has(key) {
		return false
	}
	m.Set(key, value)
	return true
}

// Delete removes key and reports whether it was present
func (m *OrderedMap) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every entry
func (m *OrderedMap) Clear() {
	m.keys = nil
	m.values = make(map[string]string)
}

// Keys returns a copy of the keys in insertion order
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for each entry in insertion order until fn returns false
func (m *OrderedMap) Range(fn func(key, value string) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// PutAll merge-puts every entry of other, overwriting existing keys
func (m *OrderedMap) PutAll(other *OrderedMap) {
	other.Range(func(k, v string) bool {
		m.Set(k, v)
		return true
	})
}

// PutAllAbsent merge-puts entries of other whose keys are not yet present
func (m *OrderedMap) PutAllAbsent(other *OrderedMap) int {
	added := 0
	other.Range(func(k, v string) bool {
		if m.PutIfAbsent(k, v) {
			added++
		}
		return true
	})
	return added
}

// Clone returns an independent copy; cloning nil yields an empty map
func (m *OrderedMap) Clone() *OrderedMap {
	out := NewOrderedMap()
	out.PutAll(m)
	return out
}

// ToMap returns an unordered copy
func (m *OrderedMap) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	m.Range(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// Equal reports whether both maps hold the same entries in the same order
func (m *OrderedMap) Equal(other *OrderedMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if other.keys[i] != k || other.values[k] != m.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON writes entries in insertion order
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	m.Range(func(k, v string) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err = writeJSONString(&buf, k); err != nil {
			return false
		}
		buf.WriteByte(':')
		err = writeJSONString(&buf, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON reads an object keeping key order. Scalar values that are
// not strings are kept in their literal form and null values are dropped.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	m.Clear()
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)

		vt, err := dec.Token()
		if err != nil {
			return err
		}
		switch v := vt.(type) {
		case string:
			m.Set(key, v)
		case json.Number:
			m.Set(key, v.String())
		case bool:
			m.Set(key, strconv.FormatBool(v))
		case nil:
			// dropped
		default:
			return fmt.Errorf("value for %q must be a string, got %v", key, vt)
		}
	}

	_, err = dec.Token()
	return err
}
