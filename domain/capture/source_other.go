//go:build !windows

package capture

// DefaultDisplay returns the display source used when none is injected.
func DefaultDisplay() DisplaySource { return ScreenshotSource{} }
