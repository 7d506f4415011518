package codec

import (
	"slices"
	"testing"
)

func TestLookup(t *testing.T) {
	c, err := Lookup("OPUS")
	if err != nil {
		t.Fatalf("Lookup(OPUS): %v", err)
	}
	if c.Name() != "opus" {
		t.Fatalf("Name() = %q, want opus", c.Name())
	}
	if _, err := Lookup("vorbis"); err == nil {
		t.Fatal("Lookup(vorbis) succeeded, want error")
	}
	if got := Names(); !slices.Equal(got, []string{"flac", "mp3", "opus"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestResolveDefaults(t *testing.T) {
	c, params, err := Resolve("opus", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := params.Keys(); !slices.Equal(got, []string{"bitrate", "bitrate-type", "audio-type"}) {
		t.Fatalf("keys = %v", got)
	}
	if n, _ := params.Int("bitrate"); n != 64000 {
		t.Fatalf("bitrate = %d, want 64000", n)
	}
	if ext := c.Extension(params); ext != "ogg" {
		t.Fatalf("Extension = %q, want ogg", ext)
	}
}

func TestResolvePrecedence(t *testing.T) {
	defaults := map[string]any{"bitrate": int64(96000), "audio-type": "voice"}
	_, params, err := Resolve("opus", defaults, []string{"bitrate=128000"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n, _ := params.Int("bitrate"); n != 128000 {
		t.Fatalf("bitrate = %d, want flag value 128000", n)
	}
	if s := params.Str("audio-type"); s != "voice" {
		t.Fatalf("audio-type = %q, want config value voice", s)
	}
}

func TestResolveRejectsInvalid(t *testing.T) {
	cases := []struct {
		name        string
		codec       string
		assignments []string
	}{
		{"unknown parameter", "opus", []string{"speed=3"}},
		{"missing equals", "opus", []string{"bitrate"}},
		{"out of range", "mp3", []string{"quality=12"}},
		{"bad enum", "opus", []string{"bitrate-type=abr"}},
		{"bad bool", "mp3", []string{"mono=maybe"}},
		{"bad int enum", "flac", []string{"bit-depth=20"}},
		{"required cleared", "opus", []string{"bitrate=auto"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Resolve(tc.codec, nil, tc.assignments); err == nil {
				t.Fatalf("Resolve(%s, %v) succeeded, want error", tc.codec, tc.assignments)
			}
		})
	}
}

func TestResolveAcceptsTOMLStyleValues(t *testing.T) {
	defaults := map[string]any{"bit-depth": "24", "quality": int64(8)}
	_, params, err := Resolve("flac", defaults, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n, _ := params.Int("bit-depth"); n != 24 {
		t.Fatalf("bit-depth = %d, want 24", n)
	}
	if s := params.Str("quality"); s != "8" {
		t.Fatalf("quality = %q, want \"8\"", s)
	}
}

func TestFingerprintCarriesSchemaID(t *testing.T) {
	c, params, err := Resolve("mp3", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fp := Fingerprint(c, params)
	v, ok := fp.Get(FingerprintKey)
	if !ok || v != "mp3/1" {
		t.Fatalf("%s = %v, want mp3/1", FingerprintKey, v)
	}
	if fp.Len() != params.Len()+1 {
		t.Fatalf("fingerprint has %d keys, want %d", fp.Len(), params.Len()+1)
	}
	if !fp.Without(FingerprintKey).Equal(params) {
		t.Fatal("fingerprint without codec key differs from params")
	}
}

func TestOpusDescriptor(t *testing.T) {
	c, params, err := Resolve("opus", nil, []string{"bitrate-type=cbr", "audio-type=voice"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, err := c.Descriptor(params)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	want := []string{"-b:a", "64000", "-vbr", "off", "-application", "voip"}
	if d.Encoder != "libopus" || d.Format != "ogg" || !slices.Equal(d.Args, want) {
		t.Fatalf("descriptor = %+v, want libopus/ogg %v", d, want)
	}
}

func TestMP3Descriptor(t *testing.T) {
	c, _ := Lookup("mp3")

	_, vbr, err := Resolve("mp3", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, err := c.Descriptor(vbr)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if !slices.Contains(d.Args, "-q:a") || slices.Contains(d.Args, "-b:a") {
		t.Fatalf("VBR args = %v, want -q:a and no -b:a", d.Args)
	}

	_, cbr, err := Resolve("mp3", nil, []string{"bitrate=192", "mono=true", "id3v2=false"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, err = c.Descriptor(cbr)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	for _, want := range []string{"192k", "-ac", "-write_id3v1"} {
		if !slices.Contains(d.Args, want) {
			t.Fatalf("CBR args = %v, missing %q", d.Args, want)
		}
	}
	if slices.Contains(d.Args, "-q:a") {
		t.Fatalf("CBR args = %v, unexpected -q:a", d.Args)
	}
}

func TestFLACDescriptor(t *testing.T) {
	c, params, err := Resolve("flac", nil, []string{"bit-depth=24"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, err := c.Descriptor(params)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if !slices.Contains(d.Args, "-bits_per_raw_sample") || !slices.Contains(d.Args, "5") {
		t.Fatalf("args = %v", d.Args)
	}
}
