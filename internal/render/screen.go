package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Screen writes the terminal control sequences around the rendered grid.
type Screen struct {
	out io.Writer
}

func NewScreen(out io.Writer) *Screen {
	return &Screen{out: out}
}

func (s *Screen) EnterAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[?25l\x1b[H\x1b[2J")
}

func (s *Screen) ExitAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[0m\x1b[?1049l\x1b[?25h")
}

// EnableMouse turns on SGR mouse button reporting.
func (s *Screen) EnableMouse() {
	_, _ = io.WriteString(s.out, "\x1b[?1000h\x1b[?1006h")
}

func (s *Screen) DisableMouse() {
	_, _ = io.WriteString(s.out, "\x1b[?1006l\x1b[?1000l")
}

func (s *Screen) Clear() {
	_, _ = io.WriteString(s.out, "\x1b[0m\x1b[H\x1b[2J")
}

// SetTitle sets the window title with OSC 0. Control bytes are dropped.
func (s *Screen) SetTitle(title string) error {
	_, err := io.WriteString(s.out, "\x1b]0;"+sanitize(title)+"\x07")
	return err
}

// StatusLine draws text on row (1-based), clipped to cols.
func (s *Screen) StatusLine(row, cols int, text string) error {
	if row < 1 || cols < 1 {
		return nil
	}
	text = sanitize(text)
	if utf8.RuneCountInString(text) > cols {
		text = string([]rune(text)[:cols])
	}
	_, err := fmt.Fprintf(s.out, "\x1b[%d;1H\x1b[0m\x1b[2K%s", row, text)
	return err
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
