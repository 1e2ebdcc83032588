package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Meta holds the free-form dimensions of a record (site, user, group, ...).
// It is an ordered mapping from a Name to an ordered list of Names: each key
// is a dimension, the list is its multi-value. Inserting an existing key
// appends to the list instead of overwriting it.
//
// The zero Meta is empty and ready to use.
type Meta struct {
	keys   []Name
	values map[Name][]Name
}

// NewMeta returns a Meta pre-populated from entries, preserving the given
// key order.
func NewMeta(entries map[Name][]Name, order []Name) Meta {
	var m Meta
	for _, k := range order {
		m.Insert(k, entries[k])
	}
	return m
}

// Insert appends vals to the list stored under key, creating the key if it
// does not exist yet.
func (m *Meta) Insert(key Name, vals []Name) {
	if m.values == nil {
		m.values = make(map[Name][]Name)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], vals...)
}

// Get returns the accumulated multi-value list for key.
func (m *Meta) Get(key Name) ([]Name, bool) {
	vals, ok := m.values[key]
	return vals, ok
}

// Contains reports whether key maps to a list containing val.
func (m *Meta) Contains(key, val Name) bool {
	for _, v := range m.values[key] {
		if v == val {
			return true
		}
	}
	return false
}

// Keys returns the keys in insertion order.
func (m *Meta) Keys() []Name {
	return m.keys
}

// Len returns the number of distinct keys.
func (m *Meta) Len() int {
	return len(m.keys)
}

// Equal reports whether both Meta hold the same keys and each key maps to
// the same ordered list. Key insertion order does not participate in
// equality; per-key value order does.
func (m Meta) Equal(other Meta) bool {
	if len(m.keys) != len(other.keys) {
		return false
	}
	for k, vals := range m.values {
		otherVals, ok := other.values[k]
		if !ok || len(vals) != len(otherVals) {
			return false
		}
		for i := range vals {
			if vals[i] != otherVals[i] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the Meta as a JSON object with keys in insertion
// order, each mapping to an array of strings.
func (m Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		vals := m.values[k]
		if len(vals) == 0 {
			// A nil slice would encode as null; keys without values
			// still map to an array.
			buf.WriteString("[]")
			continue
		}
		valsJSON, err := json.Marshal(vals)
		if err != nil {
			return nil, err
		}
		buf.Write(valsJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key encounter order and
// validating every key and value as a Name. Duplicate keys in the document
// append, matching Insert semantics.
func (m *Meta) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("meta must be a JSON object")
	}

	*m = Meta{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		rawKey, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("meta key must be a string")
		}
		key, err := ParseName(rawKey)
		if err != nil {
			return fmt.Errorf("meta key: %w", err)
		}

		var vals []Name
		if err := dec.Decode(&vals); err != nil {
			return fmt.Errorf("meta value for key %q: %w", rawKey, err)
		}
		m.Insert(key, vals)
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
