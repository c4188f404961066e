// Package render draws framebuffers onto a terminal, either as coloured
// character cells or as a kitty graphics overlay addressed by placeholder
// glyphs.
package render

import (
	"fmt"
	"strings"

	"pkt.systems/simlink/schema"
)

// Renderer draws frames onto a cell grid.
type Renderer interface {
	// Refresh redraws the grid from frame.
	Refresh(frame schema.Frame) error
	// Resize records a new grid size; the next Refresh uses it.
	Resize(cols, rows int)
	// Close releases display-side resources. Safe to call more than once.
	Close() error
	Name() string
}

// Kind selects a renderer.
type Kind string

const (
	KindCells   Kind = "cells"
	KindOverlay Kind = "overlay"
)

// ParseKind accepts the configured renderer name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindCells:
		return KindCells, nil
	case KindOverlay, "kitty":
		return KindOverlay, nil
	default:
		return "", fmt.Errorf("unknown renderer %q", s)
	}
}

// ColorMode selects how cell colours are written.
type ColorMode string

const (
	TrueColor ColorMode = "truecolor"
	Color256  ColorMode = "256"
)

// ParseColorMode accepts the configured colour mode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truecolor", "24bit":
		return TrueColor, nil
	case "256", "ansi256":
		return Color256, nil
	default:
		return "", fmt.Errorf("unknown color mode %q", s)
	}
}
