package hotkey

import (
	"fmt"

	"golang.design/x/hotkey"
)

var keyTable = func() map[int]hotkey.Key {
	letters := []hotkey.Key{
		hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF, hotkey.KeyG,
		hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL, hotkey.KeyM, hotkey.KeyN,
		hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR, hotkey.KeyS, hotkey.KeyT, hotkey.KeyU,
		hotkey.KeyV, hotkey.KeyW, hotkey.KeyX, hotkey.KeyY, hotkey.KeyZ,
	}
	digits := []hotkey.Key{
		hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
		hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
	}
	fkeys := []hotkey.Key{
		hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4, hotkey.KeyF5, hotkey.KeyF6,
		hotkey.KeyF7, hotkey.KeyF8, hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
	}
	t := map[int]hotkey.Key{0: hotkey.KeySpace}
	for i, k := range letters {
		t[1+i] = k
	}
	for i, k := range digits {
		t[27+i] = k
	}
	for i, k := range fkeys {
		t[37+i] = k
	}
	return t
}()

type xHotkey struct {
	binding Binding
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	done    chan struct{}
}

// New builds a system-wide hotkey for b.
func New(b Binding) (Hotkey, error) {
	code, ok := keyCode(b.Key)
	if !ok {
		return nil, fmt.Errorf("unsupported key %q", b.Key)
	}
	mods := make([]hotkey.Modifier, 0, len(b.Mods))
	for _, m := range b.Mods {
		mod, ok := modifier(m)
		if !ok {
			return nil, fmt.Errorf("modifier %q is not available on this platform", m)
		}
		mods = append(mods, mod)
	}
	return &xHotkey{
		binding: b,
		hk:      hotkey.New(mods, keyTable[code]),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}, nil
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return fmt.Errorf("registering %s: %w", h.binding, err)
	}
	h.done = make(chan struct{})
	go h.forward(h.hk.Keydown(), h.keydown)
	go h.forward(h.hk.Keyup(), h.keyup)
	return nil
}

func (h *xHotkey) forward(in <-chan hotkey.Event, out chan struct{}) {
	for {
		select {
		case <-h.done:
			return
		case <-in:
		}
		select {
		case out <- struct{}{}:
		case <-h.done:
			return
		}
	}
}

func (h *xHotkey) Unregister() {
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
	h.hk.Unregister()
}

func (h *xHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *xHotkey) Keyup() <-chan struct{}   { return h.keyup }

// Diagnose registers and releases the binding once.
func Diagnose(b Binding) (string, error) {
	hk, err := New(b)
	if err != nil {
		return "", err
	}
	if err := hk.Register(); err != nil {
		return "", err
	}
	hk.Unregister()
	return fmt.Sprintf("global hotkey available (%s)", b), nil
}
