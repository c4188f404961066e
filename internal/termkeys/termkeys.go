// Package termkeys decodes raw terminal input into simulation key actions.
package termkeys

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"pkt.systems/simlink/schema"
)

type Kind int

const (
	KindKey Kind = iota
	KindMouse
	KindQuit
	KindSwitchRenderer
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindMouse:
		return "mouse"
	case KindQuit:
		return "quit"
	case KindSwitchRenderer:
		return "switch_renderer"
	default:
		return "unknown"
	}
}

// Event is one decoded action. Key and Mods are set for KindKey; Button
// and Down for KindMouse.
type Event struct {
	Kind   Kind
	Key    uint8
	Mods   schema.Modifiers
	Button uint8
	Down   bool
}

const (
	ctrlC = 0x03
	ctrlP = 0x10
	ctrlR = 0x12
)

// maxSequence bounds how much of an unknown escape sequence is consumed.
const maxSequence = 16

// Read decodes r until it fails, sending events to out, and closes out.
// An escape byte with nothing buffered behind it is the Escape key.
func Read(r io.Reader, out chan<- Event) {
	defer close(out)
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case 0x1b:
			if br.Buffered() == 0 {
				out <- keyEvent(schema.KeyEscape, 0)
				continue
			}
			readEscape(br, out)
		case '\r':
			out <- keyEvent(schema.KeyEnter, 0)
			lastWasCR = true
		case '\n':
			out <- keyEvent(schema.KeyEnter, 0)
		case 0x7f, 0x08:
			out <- keyEvent(schema.KeyBackspace, 0)
		case '\t':
			out <- keyEvent(schema.KeyTab, 0)
		case ctrlC:
			out <- Event{Kind: KindQuit}
		case ctrlP:
			out <- keyEvent(schema.KeyPause, 0)
		case ctrlR:
			out <- Event{Kind: KindSwitchRenderer}
		default:
			if ev, ok := printable(b); ok {
				out <- ev
			}
		}
	}
}

func keyEvent(key uint8, mods schema.Modifiers) Event {
	return Event{Kind: KindKey, Key: key, Mods: mods}
}

// printable maps a plain byte. Upper-case letters imply shift, which the
// simulation treats as run.
func printable(b byte) (Event, bool) {
	switch {
	case b == 'f':
		return keyEvent(schema.KeyFire, 0), true
	case b == 'F':
		return keyEvent(schema.KeyFire, schema.ModShift), true
	case b >= 'A' && b <= 'Z':
		return keyEvent(schema.NormalizeKey(b), schema.ModShift), true
	case b >= 0x20 && b < 0x7f:
		return keyEvent(b, 0), true
	}
	return Event{}, false
}

func readEscape(br *bufio.Reader, out chan<- Event) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case '[':
		readCSI(br, out)
	case 'O':
		readSS3(br, out)
	case 0x1b:
		out <- keyEvent(schema.KeyEscape, 0)
		if br.Buffered() > 0 {
			readEscape(br, out)
		}
	default:
		if ev, ok := printable(b); ok && ev.Kind == KindKey {
			ev.Mods |= schema.ModAlt
			out <- ev
		}
	}
}

func readCSI(br *bufio.Reader, out chan<- Event) {
	seq := []byte{}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		seq = append(seq, b)
		if b >= 0x40 && b <= 0x7e && !(len(seq) == 1 && b == '<') {
			break
		}
		if len(seq) > maxSequence {
			return
		}
	}
	if seq[0] == '<' {
		if ev, ok := sgrMouse(string(seq[1:])); ok {
			out <- ev
		}
		return
	}
	final := seq[len(seq)-1]
	params := strings.Split(string(seq[:len(seq)-1]), ";")
	mods := modifiers(params)
	if final == '~' {
		if key, ok := tildeKeys[params[0]]; ok {
			out <- keyEvent(key, mods)
		}
		return
	}
	if key, ok := letterKey(final); ok {
		out <- keyEvent(key, mods)
	}
}

func readSS3(br *bufio.Reader, out chan<- Event) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	if key, ok := letterKey(b); ok {
		out <- keyEvent(key, 0)
	}
}

func letterKey(b byte) (uint8, bool) {
	switch b {
	case 'A':
		return schema.KeyUpArrow, true
	case 'B':
		return schema.KeyDownArrow, true
	case 'C':
		return schema.KeyRightArrow, true
	case 'D':
		return schema.KeyLeftArrow, true
	case 'H':
		return schema.KeyHome, true
	case 'F':
		return schema.KeyEnd, true
	case 'P':
		return schema.KeyF1, true
	case 'Q':
		return schema.KeyF2, true
	case 'R':
		return schema.KeyF3, true
	case 'S':
		return schema.KeyF4, true
	case 'Z':
		return schema.KeyTab, true
	}
	return 0, false
}

var tildeKeys = map[string]uint8{
	"1":  schema.KeyHome,
	"2":  schema.KeyInsert,
	"3":  schema.KeyDelete,
	"4":  schema.KeyEnd,
	"5":  schema.KeyPageUp,
	"6":  schema.KeyPageDown,
	"7":  schema.KeyHome,
	"8":  schema.KeyEnd,
	"11": schema.KeyF1,
	"12": schema.KeyF2,
	"13": schema.KeyF3,
	"14": schema.KeyF4,
	"15": schema.KeyF5,
	"17": schema.KeyF6,
	"18": schema.KeyF7,
	"19": schema.KeyF8,
	"20": schema.KeyF9,
	"21": schema.KeyF10,
	"23": schema.KeyF11,
	"24": schema.KeyF12,
}

// modifiers decodes the xterm modifier parameter ("1;2A" is shift-up).
func modifiers(params []string) schema.Modifiers {
	if len(params) < 2 {
		return 0
	}
	n, err := strconv.Atoi(params[1])
	if err != nil || n < 2 {
		return 0
	}
	bits := n - 1
	var mods schema.Modifiers
	if bits&1 != 0 {
		mods |= schema.ModShift
	}
	if bits&2 != 0 {
		mods |= schema.ModAlt
	}
	return mods
}

// sgrMouse decodes "b;x;yM" (press) or "b;x;ym" (release). Motion and wheel
// reports are ignored.
func sgrMouse(seq string) (Event, bool) {
	if len(seq) < 2 {
		return Event{}, false
	}
	final := seq[len(seq)-1]
	if final != 'M' && final != 'm' {
		return Event{}, false
	}
	parts := strings.Split(seq[:len(seq)-1], ";")
	if len(parts) != 3 {
		return Event{}, false
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil || code&(32|64) != 0 {
		return Event{}, false
	}
	var button uint8
	switch code & 3 {
	case 0:
		button = schema.MouseLeft
	case 1:
		button = schema.MouseMiddle
	case 2:
		button = schema.MouseRight
	default:
		return Event{}, false
	}
	return Event{Kind: KindMouse, Button: button, Down: final == 'M'}, true
}
