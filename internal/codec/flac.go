package codec

import (
	"fmt"

	"github.com/theirongolddev/aconv/internal/model"
)

type flac struct{}

var flacSchema = Schema{
	Name:    "flac",
	Version: 1,
	Properties: []Property{
		{Name: "bit-depth", Kind: KindEnum, Default: int64(16), Values: []string{"16", "24", "32"}, IntEnum: true,
			Help: "output sample depth"},
		{Name: "quality", Kind: KindEnum, Default: "5", Values: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8"},
			Help: "compression level, 8 is smallest"},
	},
}

var flacSampleFormat = map[int64][]string{
	16: {"-sample_fmt", "s16"},
	24: {"-sample_fmt", "s32", "-bits_per_raw_sample", "24"},
	32: {"-sample_fmt", "s32"},
}

func (flac) Name() string                  { return "flac" }
func (flac) Schema() Schema                { return flacSchema }
func (flac) Extension(model.Params) string { return "flac" }

func (flac) Descriptor(p model.Params) (Descriptor, error) {
	depth, _ := p.Int("bit-depth")
	sampleFmt, ok := flacSampleFormat[depth]
	if !ok {
		return Descriptor{}, fmt.Errorf("flac: unsupported bit-depth %d", depth)
	}
	level := p.Str("quality")
	if level == "" {
		return Descriptor{}, fmt.Errorf("flac: quality is required")
	}

	args := append([]string{"-compression_level", level, "-exact_rice_parameters", "1"}, sampleFmt...)
	return Descriptor{Encoder: "flac", Format: "flac", Args: args}, nil
}
