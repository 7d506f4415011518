package codec

import (
	"fmt"
	"slices"
	"strings"

	"github.com/theirongolddev/aconv/internal/model"
)

// FingerprintKey is the reserved parameter carrying "<codec>/<schema version>"
// in journal fingerprints.
const FingerprintKey = "$codec"

// Descriptor tells the engine how to produce one output file.
type Descriptor struct {
	Encoder string   // ffmpeg encoder name, e.g. libopus
	Format  string   // ffmpeg muxer passed with -f
	Args    []string // encoder arguments placed after the input
}

// Codec is one supported output format.
type Codec interface {
	Name() string
	Schema() Schema
	Extension(p model.Params) string
	Descriptor(p model.Params) (Descriptor, error)
}

var registry = map[string]Codec{
	"opus": opus{},
	"mp3":  mp3{},
	"flac": flac{},
}

// Default is the codec used when neither flags nor config pick one.
const Default = "opus"

// Lookup returns the codec registered under name (case-insensitive).
func Lookup(name string) (Codec, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Fingerprint returns the journal fingerprint for params encoded with c.
func Fingerprint(c Codec, params model.Params) model.Params {
	var fp model.Params
	fp.Set(FingerprintKey, c.Schema().ID())
	for _, k := range params.Keys() {
		v, _ := params.Get(k)
		fp.Set(k, v)
	}
	return fp
}

// Resolve looks up a codec and resolves its parameters in one step: config
// defaults first, then "name=value" assignments from the command line.
func Resolve(name string, defaults map[string]any, assignments []string) (Codec, model.Params, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, model.Params{}, err
	}
	schema := c.Schema()

	overrides := make(map[string]any, len(defaults)+len(assignments))
	for k, v := range defaults {
		overrides[k] = v
	}
	fromFlags, err := schema.ParseAssignments(assignments)
	if err != nil {
		return nil, model.Params{}, err
	}
	for k, v := range fromFlags {
		overrides[k] = v
	}

	params, err := schema.Resolve(overrides)
	if err != nil {
		return nil, model.Params{}, err
	}
	return c, params, nil
}
