// Package hotkey provides the global push-to-talk key.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const DefaultBinding = "ctrl+shift+space"

// Binding is a parsed key combination such as "ctrl+shift+space".
type Binding struct {
	Mods []string
	Key  string
}

func (b Binding) String() string {
	return strings.Join(append(append([]string(nil), b.Mods...), b.Key), "+")
}

var modifierNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"super":   "super",
	"cmd":     "super",
	"win":     "super",
}

func Parse(text string) (Binding, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(text)), "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("hotkey %q needs at least one modifier and a key", text)
	}

	var b Binding
	seen := map[string]bool{}
	for _, p := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.TrimSpace(p)]
		if !ok {
			return Binding{}, fmt.Errorf("hotkey %q: unknown modifier %q", text, p)
		}
		if !seen[mod] {
			seen[mod] = true
			b.Mods = append(b.Mods, mod)
		}
	}

	key := strings.TrimSpace(parts[len(parts)-1])
	if _, ok := keyCode(key); !ok {
		return Binding{}, fmt.Errorf("hotkey %q: unsupported key %q", text, key)
	}
	b.Key = key
	return b, nil
}

// keyCode validates key names. The values index into the platform key table.
func keyCode(key string) (int, bool) {
	switch {
	case key == "space":
		return 0, true
	case len(key) == 1 && key[0] >= 'a' && key[0] <= 'z':
		return 1 + int(key[0]-'a'), true
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return 27 + int(key[0]-'0'), true
	case len(key) >= 2 && key[0] == 'f':
		var n int
		if _, err := fmt.Sscanf(key[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == key[1:] {
			return 36 + n, true
		}
	}
	return 0, false
}
