// Package clipboard copies chat replies to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnavailable = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if !Available() {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

// RoundTrip writes probe, reads it back and restores the previous content.
func RoundTrip(probe string) error {
	prev, _ := Read()
	if err := Copy(probe); err != nil {
		return err
	}
	got, err := Read()
	if prev != "" {
		_ = Copy(prev)
	}
	if err != nil {
		return err
	}
	if got != probe {
		return errors.New("clipboard read back different content")
	}
	return nil
}
