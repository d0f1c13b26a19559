// Package ui renders ANSI colors for kd's terminal output.
package ui

import (
	"fmt"

	"github.com/groblegark/kdeps/internal/model"
)

// 256-color codes.
const (
	colorAccent  = 74  // blue
	colorCommand = 250 // light gray
	colorMuted   = 245 // medium gray
	colorOK      = 114 // green
	colorWarn    = 179 // amber
	colorAlert   = 168 // red
)

var noColor = !ShouldUseColor()

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent colors s as a heading or id.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted colors s as secondary text.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand colors s as a command name.
func RenderCommand(s string) string { return paint(colorCommand, s) }

// RenderStatus colors an issue status: blocked is red, closed is muted,
// work in flight is amber and open is green.
func RenderStatus(s model.Status) string {
	switch s {
	case model.StatusBlocked:
		return paint(colorAlert, string(s))
	case model.StatusClosed:
		return paint(colorMuted, string(s))
	case model.StatusInProgress, model.StatusReview:
		return paint(colorWarn, string(s))
	case model.StatusOpen:
		return paint(colorOK, string(s))
	}
	return string(s)
}

// RenderHealth colors a health status: ok is green, anything else red.
func RenderHealth(status string) string {
	if status == "ok" {
		return paint(colorOK, status)
	}
	return paint(colorAlert, status)
}

// SetColor overrides terminal detection.
func SetColor(enabled bool) {
	noColor = !enabled
}
