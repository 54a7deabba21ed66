// Package sidecar encodes and decodes the key=value metadata blobs carried
// inside text fields of remote platform objects (channel topics, message
// footers). Those blobs are the canonical state record of the entity that
// carries them, so this package must stay a pure, dependency-free codec.
package sidecar

import "strings"

// Delimiters used by the two carrier kinds. Channel topics are padded for
// readability in the platform UI; message footers are compact.
const (
	TopicDelim  = " | "
	FooterDelim = "|"
)

// Fields is an ordered set of key=value pairs. Order is preserved on encode
// so repeated read-modify-write cycles produce stable text.
type Fields struct {
	keys   []string
	values map[string]string
}

// New returns empty Fields
func New() Fields {
	return Fields{values: map[string]string{}}
}

// Set adds or replaces a key, preserving first-set order
func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = map[string]string{}
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value and whether the key is present
func (f Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of keys
func (f Fields) Len() int { return len(f.keys) }

// Map returns a copy of the mapping without order
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Encode joins key=value pairs with delim in insertion order.
// Keys and values must not contain delim or "="; that is a representation
// constraint on callers, not validated here.
func Encode(f Fields, delim string) string {
	parts := make([]string, 0, len(f.keys))
	for _, k := range f.keys {
		parts = append(parts, k+"="+f.values[k])
	}
	return strings.Join(parts, delim)
}

// Decode splits text on delim, then each segment on the first "=".
// Segments without "=" are ignored; empty text decodes to empty Fields.
// Keys and values are trimmed of surrounding whitespace so the padded and
// compact delimiters decode identically.
func Decode(text, delim string) Fields {
	f := New()
	if text == "" {
		return f
	}
	for _, seg := range strings.Split(text, delim) {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		f.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return f
}
