package codec

import (
	"fmt"
	"strconv"

	"github.com/theirongolddev/aconv/internal/model"
)

type opus struct{}

var opusSchema = Schema{
	Name:    "opus",
	Version: 1,
	Properties: []Property{
		{Name: "bitrate", Kind: KindRange, Default: int64(64000), Min: 500, Max: 512000,
			Help: "target bitrate in bits per second"},
		{Name: "bitrate-type", Kind: KindEnum, Default: "vbr", Values: []string{"cbr", "vbr", "constrained_vbr"},
			Help: "rate control mode"},
		{Name: "audio-type", Kind: KindEnum, Default: "generic", Values: []string{"generic", "voice"},
			Help: "tune the encoder for music or speech"},
	},
}

var opusVBR = map[string]string{
	"cbr":             "off",
	"vbr":             "on",
	"constrained_vbr": "constrained",
}

var opusApplication = map[string]string{
	"generic": "audio",
	"voice":   "voip",
}

func (opus) Name() string                  { return "opus" }
func (opus) Schema() Schema                { return opusSchema }
func (opus) Extension(model.Params) string { return "ogg" }

func (opus) Descriptor(p model.Params) (Descriptor, error) {
	bitrate, ok := p.Int("bitrate")
	if !ok {
		return Descriptor{}, fmt.Errorf("opus: bitrate is required")
	}
	vbr, ok := opusVBR[p.Str("bitrate-type")]
	if !ok {
		return Descriptor{}, fmt.Errorf("opus: invalid bitrate-type %q", p.Str("bitrate-type"))
	}
	app, ok := opusApplication[p.Str("audio-type")]
	if !ok {
		return Descriptor{}, fmt.Errorf("opus: invalid audio-type %q", p.Str("audio-type"))
	}
	return Descriptor{
		Encoder: "libopus",
		Format:  "ogg",
		Args: []string{
			"-b:a", strconv.FormatInt(bitrate, 10),
			"-vbr", vbr,
			"-application", app,
		},
	}, nil
}
