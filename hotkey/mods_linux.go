//go:build linux

package hotkey

import "golang.design/x/hotkey"

func modifier(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl":
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	case "alt":
		return hotkey.Mod1, true
	case "super":
		return hotkey.Mod4, true
	}
	return 0, false
}
