// Package ui styles mj's terminal output.
package ui

import (
	"fmt"
	"strconv"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // yellow
	colorFail   = 203 // red
)

var noColor bool

func RenderAccent(s string) string  { return render(colorAccent, s) }
func RenderMuted(s string) string   { return render(colorMuted, s) }
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderStatus colors an event or health status: finished and serving
// states green, failures red, in-flight yellow, anything else muted.
func RenderStatus(status string) string {
	switch status {
	case "PROCESSED", "SERVING", "ok":
		return render(colorOK, status)
	case "FAILED", "NOT_SERVING", "degraded":
		return render(colorFail, status)
	case "PROCESSING":
		return render(colorWarn, status)
	}
	return RenderMuted(status)
}

// RenderCount returns n as text, red when positive. Used for dead-letter
// depths.
func RenderCount(n int) string {
	s := strconv.Itoa(n)
	if n > 0 {
		return render(colorFail, s)
	}
	return s
}

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// SetColor turns styling on or off globally.
func SetColor(enabled bool) {
	noColor = !enabled
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	SetColor(false)
}
