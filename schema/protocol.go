package schema

import "fmt"

// ProtocolVersion is the wire protocol version this build speaks.
const ProtocolVersion uint32 = 1

// HandshakeSize is the encoded size of Handshake.
const HandshakeSize = 8

// MaxWireString is the largest string a u16 length prefix can describe.
const MaxWireString = 0xffff

// Bounds the simulation applies to strings a display sends it.
const (
	MaxConfigNameLen  = 63
	MaxConfigValueLen = 127
	MaxShmNameLen     = 254
)

// Resolution is the fixed framebuffer size negotiated in the handshake.
type Resolution struct {
	Width  int
	Height int
}

// FrameBytes returns the size of one RGB frame at this resolution.
func (r Resolution) FrameBytes() int {
	return r.Width * r.Height * 3
}

// Valid reports whether both dimensions are usable.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0 && r.Width <= 0xffff && r.Height <= 0xffff
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Handshake is sent once by the simulation right after accepting a client.
type Handshake struct {
	Version    uint32
	Resolution Resolution
}

// SimKind discriminates simulation to client messages.
type SimKind uint8

const (
	SimFrame         SimKind = 0
	SimSetTitle      SimKind = 1
	SimQuit          SimKind = 2
	SimFrameShmReady SimKind = 3
	SimGameMessage   SimKind = 4
	SimPlayerStatus  SimKind = 5
	SimMenuMessage   SimKind = 6
	SimAutomapTitle  SimKind = 7
	SimMenu          SimKind = 8
	SimIntermission  SimKind = 9
	SimFinaleText    SimKind = 10
	SimFinale        SimKind = 11
)

func (k SimKind) String() string {
	switch k {
	case SimFrame:
		return "frame"
	case SimSetTitle:
		return "set_title"
	case SimQuit:
		return "quit"
	case SimFrameShmReady:
		return "frame_shm_ready"
	case SimGameMessage:
		return "game_message"
	case SimPlayerStatus:
		return "player_status"
	case SimMenuMessage:
		return "menu_message"
	case SimAutomapTitle:
		return "automap_title"
	case SimMenu:
		return "menu"
	case SimIntermission:
		return "intermission"
	case SimFinaleText:
		return "finale_text"
	case SimFinale:
		return "finale"
	default:
		return fmt.Sprintf("sim_kind_%d", uint8(k))
	}
}

// ClientKind discriminates client to simulation messages.
type ClientKind uint8

const (
	ClientWantFrame       ClientKind = 0
	ClientPressKey        ClientKind = 1
	ClientSetFrameShmName ClientKind = 2
	ClientSetConfigVar    ClientKind = 3
)

func (k ClientKind) String() string {
	switch k {
	case ClientWantFrame:
		return "want_frame"
	case ClientPressKey:
		return "press_key"
	case ClientSetFrameShmName:
		return "set_frame_shm_name"
	case ClientSetConfigVar:
		return "set_config_var"
	default:
		return fmt.Sprintf("client_kind_%d", uint8(k))
	}
}

// PressedMouseButtons is the PressKey "pressed" sentinel marking the key byte
// as a bitmask of held mouse buttons.
const PressedMouseButtons uint8 = 0xff

// DetachedUI bits are carried with each frame to say which UI elements the
// simulation left for the display to draw.
type DetachedUI uint8

const (
	DetachedMenuMessage DetachedUI = 1 << iota
	DetachedMenu
	DetachedIntermission
	DetachedFinale
	DetachedStatusBar
	DetachedAutomapTitle
)

// Has reports whether bit is set.
func (d DetachedUI) Has(bit DetachedUI) bool {
	return d&bit != 0
}
