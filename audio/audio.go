package audio

import (
	"errors"
	"strings"
)

// ErrNoDevice is returned when a named capture device is not present.
var ErrNoDevice = errors.New("capture device not found")

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context is a connection to the platform audio system. Opening it is the
// point where microphone access is granted or refused.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one recording handle. It is owned by a single capture and
// must be closed when that capture ends.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice resolves a device by name. An empty name means the system default.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Name == name || strings.EqualFold(devices[i].ID, name) {
			return &devices[i], nil
		}
	}
	return nil, ErrNoDevice
}

func deviceName(d *DeviceInfo) string {
	if d != nil {
		return d.Name
	}
	return "system default"
}
