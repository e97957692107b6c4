// Package header implements an ordered, case-insensitive, multi-value header
// map. Keys are folded to lower case on insertion, which is also the form
// HTTP/2 puts on the wire.
package header

import (
	"net/http"
	"sort"
	"strings"
)

type Header struct {
	keys   []string
	values map[string][]string
}

func New() *Header {
	return &Header{values: make(map[string][]string)}
}

// FromMap builds a header from single-valued pairs. Map iteration is
// unordered, so keys are inserted sorted.
func FromMap(m map[string]string) *Header {
	h := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, m[k])
	}
	return h
}

// FromHTTP copies an http.Header. Pseudo headers never appear there.
func FromHTTP(src http.Header) *Header {
	h := New()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Add(k, src[k]...)
	}
	return h
}

func Fold(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (h *Header) init() {
	if h.values == nil {
		h.values = make(map[string][]string)
	}
}

// Set replaces every value stored under key.
func (h *Header) Set(key string, values ...string) *Header {
	k := Fold(key)
	if k == "" {
		return h
	}
	h.init()
	if _, ok := h.values[k]; !ok {
		h.keys = append(h.keys, k)
	}
	h.values[k] = append([]string(nil), values...)
	return h
}

// Add appends values to key.
func (h *Header) Add(key string, values ...string) *Header {
	k := Fold(key)
	if k == "" {
		return h
	}
	h.init()
	if _, ok := h.values[k]; !ok {
		h.keys = append(h.keys, k)
	}
	h.values[k] = append(h.values[k], values...)
	return h
}

// SetDefault stores values only when key is absent and reports whether it did.
func (h *Header) SetDefault(key string, values ...string) bool {
	if h.Has(key) {
		return false
	}
	h.Set(key, values...)
	return true
}

func (h *Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h.values[Fold(key)]
	return ok
}

// Get returns the first value for key or "".
func (h *Header) Get(key string) string {
	if h == nil {
		return ""
	}
	if v := h.values[Fold(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns a copy of every value for key.
func (h *Header) Values(key string) []string {
	if h == nil {
		return nil
	}
	v := h.values[Fold(key)]
	if len(v) == 0 {
		return nil
	}
	return append([]string(nil), v...)
}

func (h *Header) Del(key string) {
	if h == nil {
		return
	}
	k := Fold(key)
	if _, ok := h.values[k]; !ok {
		return
	}
	delete(h.values, k)
	for i, existing := range h.keys {
		if existing == k {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns folded keys in insertion order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.keys...)
}

func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Each visits keys in insertion order and stops when fn returns false.
func (h *Header) Each(fn func(key string, values []string) bool) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		if !fn(k, h.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy. Cloning nil yields an empty header.
func (h *Header) Clone() *Header {
	out := New()
	if h == nil {
		return out
	}
	out.keys = append(make([]string, 0, len(h.keys)), h.keys...)
	for k, v := range h.values {
		out.values[k] = append([]string(nil), v...)
	}
	return out
}

// Merge overlays src onto h, replacing values for keys present in src.
func (h *Header) Merge(src *Header) *Header {
	src.Each(func(k string, v []string) bool {
		h.Set(k, v...)
		return true
	})
	return h
}

// HTTP converts into an http.Header keyed by the folded names.
func (h *Header) HTTP() http.Header {
	out := make(http.Header, h.Len())
	h.Each(func(k string, v []string) bool {
		out[k] = append([]string(nil), v...)
		return true
	})
	return out
}
