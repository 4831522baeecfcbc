package hotkey

import "context"

// Gesture is the press-and-hold surface a hotkey drives.
type Gesture interface {
	Press(x float64)
	Release()
}

// Hold forwards keydown as Press(0) and keyup as Release until ctx is done.
// A hotkey has no horizontal position, so drag-to-cancel never triggers.
// Key repeat while held produces extra keydowns; the gesture ignores a
// Press while capturing.
func Hold(ctx context.Context, hk Hotkey, g Gesture) {
	down := false
	for {
		select {
		case <-ctx.Done():
			if down {
				g.Release()
			}
			return
		case <-hk.Keydown():
			down = true
			g.Press(0)
		case <-hk.Keyup():
			if down {
				down = false
				g.Release()
			}
		}
	}
}
