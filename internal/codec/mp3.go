package codec

import (
	"fmt"
	"strconv"

	"github.com/theirongolddev/aconv/internal/model"
)

type mp3 struct{}

var mp3Schema = Schema{
	Name:    "mp3",
	Version: 1,
	Properties: []Property{
		{Name: "bitrate", Kind: KindRange, Min: 8, Max: 320,
			Help: "constant bitrate in kbit/s; unset selects VBR"},
		{Name: "quality", Kind: KindRange, Default: int64(4), Min: 0, Max: 9,
			Help: "VBR quality, 0 is best"},
		{Name: "encoding-engine-quality", Kind: KindEnum, Default: "high", Values: []string{"fast", "standard", "high"},
			Help: "LAME algorithm quality"},
		{Name: "mono", Kind: KindBool, Default: false,
			Help: "downmix to a single channel"},
		{Name: "id3v2", Kind: KindBool, Default: true,
			Help: "write ID3v2.4 tags instead of ID3v2.3 plus ID3v1"},
	},
}

// LAME -q values for each engine quality level.
var mp3EngineQuality = map[string]string{
	"fast":     "7",
	"standard": "5",
	"high":     "2",
}

func (mp3) Name() string                  { return "mp3" }
func (mp3) Schema() Schema                { return mp3Schema }
func (mp3) Extension(model.Params) string { return "mp3" }

func (mp3) Descriptor(p model.Params) (Descriptor, error) {
	engineQ, ok := mp3EngineQuality[p.Str("encoding-engine-quality")]
	if !ok {
		return Descriptor{}, fmt.Errorf("mp3: invalid encoding-engine-quality %q", p.Str("encoding-engine-quality"))
	}

	var args []string
	if kbps, ok := p.Int("bitrate"); ok {
		args = append(args, "-b:a", strconv.FormatInt(kbps, 10)+"k")
	} else {
		q, ok := p.Int("quality")
		if !ok {
			return Descriptor{}, fmt.Errorf("mp3: quality is required when bitrate is unset")
		}
		args = append(args, "-q:a", strconv.FormatInt(q, 10))
	}
	args = append(args, "-compression_level", engineQ)

	if p.Bool("mono") {
		args = append(args, "-ac", "1")
	}
	if p.Bool("id3v2") {
		args = append(args, "-id3v2_version", "4", "-write_id3v1", "0")
	} else {
		args = append(args, "-id3v2_version", "3", "-write_id3v1", "1")
	}

	return Descriptor{Encoder: "libmp3lame", Format: "mp3", Args: args}, nil
}
