//go:build windows

package mitigation

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const mbIconExclamation = 0x00000030

var procMessageBeep = windows.NewLazySystemDLL("user32.dll").NewProc("MessageBeep")

// SystemTone plays the Windows exclamation sound.
func SystemTone() TonePlayer {
	return ToneFunc(func() error {
		r, _, err := procMessageBeep.Call(mbIconExclamation)
		if r == 0 {
			return fmt.Errorf("MessageBeep: %w", err)
		}
		return nil
	})
}
