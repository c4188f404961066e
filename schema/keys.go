package schema

// Virtual key codes understood by the simulation. Printable keys use their
// lower-case ASCII value.
const (
	KeyRightArrow uint8 = 0xae
	KeyLeftArrow  uint8 = 0xac
	KeyUpArrow    uint8 = 0xad
	KeyDownArrow  uint8 = 0xaf
	KeyStrafeL    uint8 = ','
	KeyStrafeR    uint8 = '.'
	KeyUse        uint8 = ' '
	KeyFire       uint8 = KeyRCtrl
	KeyEscape     uint8 = 27
	KeyEnter      uint8 = 13
	KeyTab        uint8 = 9
	KeyBackspace  uint8 = 0x7f
	KeyPause      uint8 = 0xff
	KeyEquals     uint8 = '='
	KeyMinus      uint8 = '-'

	KeyRShift uint8 = 0x80 + 0x36
	KeyRCtrl  uint8 = 0x80 + 0x1d
	KeyRAlt   uint8 = 0x80 + 0x38

	KeyF1  uint8 = 0x80 + 0x3b
	KeyF2  uint8 = 0x80 + 0x3c
	KeyF3  uint8 = 0x80 + 0x3d
	KeyF4  uint8 = 0x80 + 0x3e
	KeyF5  uint8 = 0x80 + 0x3f
	KeyF6  uint8 = 0x80 + 0x40
	KeyF7  uint8 = 0x80 + 0x41
	KeyF8  uint8 = 0x80 + 0x42
	KeyF9  uint8 = 0x80 + 0x43
	KeyF10 uint8 = 0x80 + 0x44
	KeyF11 uint8 = 0x80 + 0x57
	KeyF12 uint8 = 0x80 + 0x58

	KeyHome     uint8 = 0x80 + 0x47
	KeyEnd      uint8 = 0x80 + 0x4f
	KeyPageUp   uint8 = 0x80 + 0x49
	KeyPageDown uint8 = 0x80 + 0x51
	KeyInsert   uint8 = 0x80 + 0x52
	KeyDelete   uint8 = 0x80 + 0x53
)

// Modifiers is a bit set of modifier keys implied by a key action.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModAlt
)

// Has reports whether m contains all bits of other.
func (m Modifiers) Has(other Modifiers) bool {
	return m&other == other
}

// ModifierKeys lists each modifier bit with the virtual key it presses.
var ModifierKeys = [...]struct {
	Mod Modifiers
	Key uint8
}{
	{ModShift, KeyRShift},
	{ModAlt, KeyRAlt},
}

// Mouse button bits carried in a mouse PressKey message.
const (
	MouseLeft uint8 = 1 << iota
	MouseRight
	MouseMiddle
)

// OppositeKey returns the movement key pointing the other way, if any.
func OppositeKey(key uint8) (uint8, bool) {
	switch key {
	case KeyUpArrow:
		return KeyDownArrow, true
	case KeyDownArrow:
		return KeyUpArrow, true
	case KeyLeftArrow:
		return KeyRightArrow, true
	case KeyRightArrow:
		return KeyLeftArrow, true
	case KeyStrafeL:
		return KeyStrafeR, true
	case KeyStrafeR:
		return KeyStrafeL, true
	default:
		return 0, false
	}
}

// NormalizeKey lower-cases ASCII letters the way the simulation expects them.
func NormalizeKey(key uint8) uint8 {
	if key >= 'A' && key <= 'Z' {
		return key + ('a' - 'A')
	}
	return key
}
