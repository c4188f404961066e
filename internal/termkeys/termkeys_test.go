package termkeys

import (
	"reflect"
	"strings"
	"testing"

	"pkt.systems/simlink/schema"
)

func decode(t *testing.T, input string) []Event {
	t.Helper()
	out := make(chan Event, 64)
	go Read(strings.NewReader(input), out)
	var events []Event
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func expect(t *testing.T, input string, want ...Event) {
	t.Helper()
	got := decode(t, input)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("input %q: expected %+v, got %+v", input, want, got)
	}
}

func k(key uint8, mods schema.Modifiers) Event {
	return Event{Kind: KindKey, Key: key, Mods: mods}
}

func TestArrowKeys(t *testing.T) {
	expect(t, "\x1b[A\x1b[B\x1b[C\x1b[D",
		k(schema.KeyUpArrow, 0),
		k(schema.KeyDownArrow, 0),
		k(schema.KeyRightArrow, 0),
		k(schema.KeyLeftArrow, 0),
	)
	expect(t, "\x1bOA", k(schema.KeyUpArrow, 0))
}

func TestShiftedArrowAndLetters(t *testing.T) {
	expect(t, "\x1b[1;2A", k(schema.KeyUpArrow, schema.ModShift))
	expect(t, "\x1b[1;4D", k(schema.KeyLeftArrow, schema.ModShift|schema.ModAlt))
	expect(t, "W", k('w', schema.ModShift))
}

func TestAltPrefix(t *testing.T) {
	expect(t, "\x1b,", k(',', schema.ModAlt))
	expect(t, "\x1bA", k('a', schema.ModShift|schema.ModAlt))
}

func TestLoneEscape(t *testing.T) {
	expect(t, "\x1b", k(schema.KeyEscape, 0))
	expect(t, "\x1b\x1b[A", k(schema.KeyEscape, 0), k(schema.KeyUpArrow, 0))
}

func TestControlKeys(t *testing.T) {
	expect(t, "\r\n\t\x7f",
		k(schema.KeyEnter, 0),
		k(schema.KeyTab, 0),
		k(schema.KeyBackspace, 0),
	)
	expect(t, "\x03", Event{Kind: KindQuit})
	expect(t, "\x12", Event{Kind: KindSwitchRenderer})
	expect(t, "\x10", k(schema.KeyPause, 0))
	expect(t, "f F", k(schema.KeyFire, 0), k(schema.KeyUse, 0), k(schema.KeyFire, schema.ModShift))
}

func TestFunctionKeys(t *testing.T) {
	expect(t, "\x1bOP\x1b[15~\x1b[24~\x1b[5~",
		k(schema.KeyF1, 0),
		k(schema.KeyF5, 0),
		k(schema.KeyF12, 0),
		k(schema.KeyPageUp, 0),
	)
}

func TestSGRMouse(t *testing.T) {
	expect(t, "\x1b[<0;10;5M\x1b[<2;1;1M\x1b[<0;10;5m",
		Event{Kind: KindMouse, Button: schema.MouseLeft, Down: true},
		Event{Kind: KindMouse, Button: schema.MouseRight, Down: true},
		Event{Kind: KindMouse, Button: schema.MouseLeft, Down: false},
	)
	// wheel and motion reports are dropped
	expect(t, "\x1b[<64;1;1M\x1b[<32;4;4M")
}

func TestUnknownSequencesSkipped(t *testing.T) {
	expect(t, "\x1b[99~x", k('x', 0))
	expect(t, "\xc3\xa5a", k('a', 0))
}
