package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Params is an ordered mapping from parameter name to value. It configures the
// encoder for a run and doubles as the fingerprint that decides whether a
// journaled output is still valid.
//
// Values are int64, string, bool, or nil. Two Params are equal when they carry
// the same key set and identical values per key; order does not matter.
type Params struct {
	keys   []string
	values map[string]any
}

// Set stores v under key, appending key to the order if it is new.
func (p *Params) Set(key string, v any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = normalizeValue(v)
}

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Int returns the value under key as an int64. Missing or nil values report false.
func (p Params) Int(key string) (int64, bool) {
	v, ok := p.values[key].(int64)
	return v, ok
}

// Str returns the value under key as a string.
func (p Params) Str(key string) string {
	s, _ := p.values[key].(string)
	return s
}

// Bool returns the value under key as a bool.
func (p Params) Bool(key string) bool {
	b, _ := p.values[key].(bool)
	return b
}

// Keys returns the parameter names in insertion order.
func (p Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p Params) Len() int { return len(p.keys) }

// Without returns a copy of p with key removed.
func (p Params) Without(key string) Params {
	var out Params
	for _, k := range p.keys {
		if k == key {
			continue
		}
		out.Set(k, p.values[k])
	}
	return out
}

// Clone returns an independent copy of p.
func (p Params) Clone() Params {
	var out Params
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// Equal reports whether p and o have the same keys and identical values.
func (p Params) Equal(o Params) bool {
	if len(p.keys) != len(o.keys) {
		return false
	}
	for k, v := range p.values {
		ov, ok := o.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes p as a JSON object preserving key order.
func (p Params) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. Keys are ordered alphabetically since
// encoding/json does not expose object order.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("params: expected object")
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	*p = Params{}
	for _, k := range keys {
		v := normalizeValue(raw[k])
		switch v.(type) {
		case nil, int64, string, bool, float64:
		default:
			return fmt.Errorf("params: unsupported value for %q", k)
		}
		p.Set(k, v)
	}
	return nil
}

// String renders p as space-separated key=value pairs.
func (p Params) String() string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		v := p.values[k]
		if v == nil {
			parts = append(parts, k+"=auto")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// normalizeValue folds the numeric types produced by flag parsing, TOML and
// JSON decoding onto int64 so that equality is by value, not by Go type.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return normalizeValue(f)
		}
		return n.String()
	default:
		return v
	}
}
