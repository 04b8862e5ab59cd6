package fact

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Row is an ordered string-to-scalar map. Field order is the insertion
// order, which for decoded rows is the document order of the source file.
// Iteration via Keys or Fields is deterministic.
//
// The zero Row is empty and ready to use.
type Row struct {
	keys []string
	vals map[string]Scalar
}

// NewRow creates an empty row with capacity for n fields.
func NewRow(n int) Row {
	return Row{
		keys: make([]string, 0, n),
		vals: make(map[string]Scalar, n),
	}
}

// Set stores a cell. New keys append to the field order; existing keys
// keep their position.
func (r *Row) Set(key string, v Scalar) {
	if r.vals == nil {
		r.vals = make(map[string]Scalar)
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get returns the cell for key and whether it exists.
func (r Row) Get(key string) (Scalar, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the field names in insertion order. The slice is a copy.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r Row) Len() int {
	return len(r.keys)
}

// Fields calls fn for each field in insertion order. Iteration stops if
// fn returns false.
func (r Row) Fields(fn func(key string, v Scalar) bool) {
	for _, k := range r.keys {
		if !fn(k, r.vals[k]) {
			return
		}
	}
}

// MarshalJSON implements json.Marshaler preserving insertion order.
// NOTE: Display form only. Canonical hashing sorts keys; see canonical.go.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalScalar(r.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving the document key
// order via token-level decoding.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object, got %v", tok)
	}

	*r = NewRow(4)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string, got %v", keyTok)
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("row key %q: %w", key, err)
		}
		cell, err := ScalarFromAny(raw)
		if err != nil {
			return fmt.Errorf("row key %q: %w", key, err)
		}
		r.Set(key, cell)
	}

	// Consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler, preserving document key order.
// Nested mappings and sequences are rejected; rows hold scalars only.
func (r *Row) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("row must be a mapping, got %v at line %d", node.Kind, node.Line)
	}

	*r = NewRow(len(node.Content) / 2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if valNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("row field %q: nested values are not allowed (line %d)", keyNode.Value, valNode.Line)
		}

		var raw any
		if err := valNode.Decode(&raw); err != nil {
			return fmt.Errorf("row field %q: %w", keyNode.Value, err)
		}
		cell, err := ScalarFromAny(raw)
		if err != nil {
			return fmt.Errorf("row field %q: %w", keyNode.Value, err)
		}
		r.Set(keyNode.Value, cell)
	}
	return nil
}
