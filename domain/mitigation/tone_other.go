//go:build !windows

package mitigation

import "time"

// SystemTone falls back to the synthesized tone off Windows.
func SystemTone() TonePlayer {
	return NewBeepTone(880, 250*time.Millisecond)
}
