package encoder

import (
	"fmt"
	"sort"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// Format ties an encoder to the file name and MIME type used when the
// encoded capture is uploaded.
type Format struct {
	Name     string
	FileName string
	MIME     string
	New      func() (Encoder, error)
}

var formats = map[string]Format{
	"flac": {
		Name:     "flac",
		FileName: "recording.flac",
		MIME:     "audio/flac",
		New:      func() (Encoder, error) { return NewFlac() },
	},
	"wav": {
		Name:     "wav",
		FileName: "recording.wav",
		MIME:     "audio/wav",
		New:      func() (Encoder, error) { return NewWav(), nil },
	},
}

func Lookup(name string) (Format, error) {
	f, ok := formats[name]
	if !ok {
		return Format{}, fmt.Errorf("unknown audio format %q (use %v)", name, Names())
	}
	return f, nil
}

func Names() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
