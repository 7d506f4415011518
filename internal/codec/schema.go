// Package codec describes the encoders aconv can drive: their parameter
// schemas, output extensions, and the job descriptors handed to the engine.
package codec

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/theirongolddev/aconv/internal/model"
)

// PropKind is the value type of a codec property.
type PropKind int

const (
	KindInt PropKind = iota
	KindRange
	KindEnum
	KindBool
)

func (k PropKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindRange:
		return "range"
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Property is one named, typed encoder parameter.
type Property struct {
	Name    string
	Kind    PropKind
	Default any // nil means optional with no value ("auto")
	Min     int64
	Max     int64
	Values  []string // allowed enum values, in their textual form
	IntEnum bool     // enum values are stored as integers
	Help    string
}

// Describe renders the accepted values for help output.
func (p Property) Describe() string {
	switch p.Kind {
	case KindRange:
		return fmt.Sprintf("%d..%d", p.Min, p.Max)
	case KindEnum:
		return strings.Join(p.Values, "|")
	case KindBool:
		return "true|false"
	default:
		return "integer"
	}
}

// DefaultString renders the default for help output.
func (p Property) DefaultString() string {
	if p.Default == nil {
		return "auto"
	}
	return fmt.Sprint(p.Default)
}

// ParseValue converts a textual value (from a flag) into the property's type.
// "auto" and the empty string clear an optional property.
func (p Property) ParseValue(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		if p.Default != nil {
			return nil, fmt.Errorf("%s: a value is required", p.Name)
		}
		return nil, nil
	}
	switch p.Kind {
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a boolean", p.Name, s)
		}
		return b, nil
	case KindInt, KindRange:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", p.Name, s)
		}
		return p.Check(n)
	case KindEnum:
		return p.Check(s)
	}
	return nil, fmt.Errorf("%s: unsupported property kind", p.Name)
}

// Check validates v against the property and returns it in canonical form.
// It accepts the loosely typed values produced by TOML decoding.
func (p Property) Check(v any) (any, error) {
	if v == nil {
		if p.Default != nil {
			return nil, fmt.Errorf("%s: a value is required", p.Name)
		}
		return nil, nil
	}
	switch p.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected a boolean, got %v", p.Name, v)
		}
		return b, nil
	case KindInt, KindRange:
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("%s: expected an integer, got %v", p.Name, v)
		}
		if p.Kind == KindRange && (n < p.Min || n > p.Max) {
			return nil, fmt.Errorf("%s: %d is outside %d..%d", p.Name, n, p.Min, p.Max)
		}
		return n, nil
	case KindEnum:
		text := fmt.Sprint(v)
		if n, ok := asInt(v); ok {
			text = strconv.FormatInt(n, 10)
		}
		if !slices.Contains(p.Values, text) {
			return nil, fmt.Errorf("%s: %q is not one of %s", p.Name, text, strings.Join(p.Values, ", "))
		}
		if p.IntEnum {
			n, _ := strconv.ParseInt(text, 10, 64)
			return n, nil
		}
		return text, nil
	}
	return nil, fmt.Errorf("%s: unsupported property kind", p.Name)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Schema is the named, versioned parameter set of a codec. Bumping Version
// invalidates every journal entry produced under the previous version.
type Schema struct {
	Name       string
	Version    int
	Properties []Property
}

// ID identifies the schema in journal fingerprints.
func (s Schema) ID() string {
	return s.Name + "/" + strconv.Itoa(s.Version)
}

// Lookup returns the property with the given name.
func (s Schema) Lookup(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Resolve fills defaults, applies overrides in schema order, and validates the
// result. Unknown override names are rejected.
func (s Schema) Resolve(overrides map[string]any) (model.Params, error) {
	for name := range overrides {
		if _, ok := s.Lookup(name); !ok {
			return model.Params{}, fmt.Errorf("codec %s has no parameter %q", s.Name, name)
		}
	}

	var params model.Params
	for _, p := range s.Properties {
		v := p.Default
		if o, ok := overrides[p.Name]; ok {
			v = o
		}
		checked, err := p.Check(v)
		if err != nil {
			return model.Params{}, err
		}
		params.Set(p.Name, checked)
	}
	return params, nil
}

// ParseAssignments parses "name=value" strings into typed overrides.
func (s Schema) ParseAssignments(assignments []string) (map[string]any, error) {
	out := make(map[string]any, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", a)
		}
		name = strings.TrimSpace(name)
		p, found := s.Lookup(name)
		if !found {
			return nil, fmt.Errorf("codec %s has no parameter %q", s.Name, name)
		}
		v, err := p.ParseValue(value)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
