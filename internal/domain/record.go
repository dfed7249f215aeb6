// Package domain defines the core types and errors for the workspace
// specification compiler: ordered records, the user directory, groups,
// channels, and the compiled model handed to the provisioning layer.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one loaded entity (typically a person) as an ordered field map.
// Field values are one of: string, float64, bool, nil, []any, or *Record for
// nested mappings. Insertion order is preserved and significant: identity
// heuristics and serialized output both depend on it.
type Record struct {
	keys   []string
	fields map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]any)}
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value for a field and whether it is present.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// GetString returns the field value if it is present and string-typed.
func (r *Record) GetString(key string) (string, bool) {
	v, ok := r.fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores a field value. A new field is appended after all existing
// fields; setting an existing field keeps its position.
func (r *Record) Set(key string, value any) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = value
}

// Delete removes a field if present.
func (r *Record) Delete(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// First returns the first field by insertion order.
func (r *Record) First() (key string, value any, ok bool) {
	if len(r.keys) == 0 {
		return "", nil, false
	}
	k := r.keys[0]
	return k, r.fields[k], true
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := &Record{
		keys:   make([]string, len(r.keys)),
		fields: make(map[string]any, len(r.fields)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.fields {
		out.fields[k] = CloneValue(v)
	}
	return out
}

// Equal reports deep equality of two records, ignoring field order.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.fields) != len(other.fields) {
		return false
	}
	for k, v := range r.fields {
		ov, ok := other.fields[k]
		if !ok || !ValueEqual(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the record with fields in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CloneValue deep-copies a record field value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case *Record:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = CloneValue(e)
		}
		return out
	default:
		// Scalars (string, float64, bool, nil) are immutable.
		return v
	}
}

// ValueEqual reports deep equality of two record field values.
func ValueEqual(a, b any) bool {
	switch av := a.(type) {
	case *Record:
		bv, ok := b.(*Record)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
