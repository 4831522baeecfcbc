package encoder

import (
	"encoding/binary"
	"math"
	"testing"
)

func sineSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(math.Sin(2*math.Pi*440*float64(i)/SampleRate) * 8000)
	}
	return samples
}

func encodeAll(t *testing.T, enc Encoder, samples []int16) {
	t.Helper()
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFlacEncoder(t *testing.T) {
	samples := sineSamples(BlockSize*3 + 100)

	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	encodeAll(t, enc, samples)

	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}
	data := enc.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.EncodeBlock(nil); err != nil {
		t.Fatalf("EncodeBlock(nil): %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if len(enc.Bytes()) == 0 {
		t.Error("expected header bytes even without audio")
	}
}

func TestWavEncoder(t *testing.T) {
	samples := sineSamples(BlockSize + 7)

	enc := NewWav()
	encodeAll(t, enc, samples)

	data := enc.Bytes()
	if len(data) != WAVHeaderSize+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), WAVHeaderSize+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", got, len(samples)*2)
	}
	first := int16(binary.LittleEndian.Uint16(data[WAVHeaderSize+2:]))
	if first != samples[1] {
		t.Errorf("sample[1] = %d, want %d", first, samples[1])
	}
}

func TestLookup(t *testing.T) {
	for _, tt := range []struct{ name, file, mime string }{
		{"flac", "recording.flac", "audio/flac"},
		{"wav", "recording.wav", "audio/wav"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q): %v", tt.name, err)
			}
			if f.FileName != tt.file || f.MIME != tt.mime {
				t.Errorf("got %s %s, want %s %s", f.FileName, f.MIME, tt.file, tt.mime)
			}
			enc, err := f.New()
			if err != nil || enc == nil {
				t.Fatalf("New: %v", err)
			}
		})
	}
	t.Run("unknown", func(t *testing.T) {
		if _, err := Lookup("m4a"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
