package domain

import (
	"bytes"
	"encoding/json"
)

// Directory is the deduplicated user directory: canonical key to record,
// with keys kept in first-seen order so repeated compiles of the same
// specification produce identical output.
type Directory struct {
	keys  []string
	users map[string]*Record
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]*Record)}
}

// Len returns the number of entries.
func (d *Directory) Len() int { return len(d.keys) }

// Keys returns the canonical keys in first-seen order.
func (d *Directory) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the record for a canonical key, or nil.
func (d *Directory) Get(key string) *Record {
	return d.users[key]
}

// Set stores a record under a canonical key. A new key is appended after
// all existing keys; an existing key keeps its position.
func (d *Directory) Set(key string, rec *Record) {
	if _, ok := d.users[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.users[key] = rec
}

// Records returns the records in key order.
func (d *Directory) Records() []*Record {
	out := make([]*Record, 0, len(d.keys))
	for _, k := range d.keys {
		out = append(out, d.users[k])
	}
	return out
}

// Clone returns a deep copy of the directory.
func (d *Directory) Clone() *Directory {
	out := NewDirectory()
	for _, k := range d.keys {
		out.Set(k, d.users[k].Clone())
	}
	return out
}

// MarshalJSON serializes the directory with keys in first-seen order.
func (d *Directory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.users[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
