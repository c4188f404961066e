package schema

// SimMessage is any decoded simulation to client message.
type SimMessage interface {
	SimKind() SimKind
}

// ClientMessage is any decoded client to simulation message.
type ClientMessage interface {
	ClientKind() ClientKind
}

// Frame is one complete framebuffer snapshot. Pixels is nil when the frame
// was delivered through shared memory; ShmName then names the object.
type Frame struct {
	Width      int
	Height     int
	Pixels     []byte
	ShmName    string
	DetachedUI DetachedUI
}

func (Frame) SimKind() SimKind { return SimFrame }

// Resolution returns the frame size.
func (f Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}

// FrameShmReady announces a frame written to the agreed shared memory object.
type FrameShmReady struct{}

func (FrameShmReady) SimKind() SimKind { return SimFrameShmReady }

type SetTitle struct{ Title string }

func (SetTitle) SimKind() SimKind { return SimSetTitle }

// Quit is the simulation's disconnect notice.
type Quit struct{}

func (Quit) SimKind() SimKind { return SimQuit }

type GameMessage struct{ Text string }

func (GameMessage) SimKind() SimKind { return SimGameMessage }

type MenuMessage struct{ Text string }

func (MenuMessage) SimKind() SimKind { return SimMenuMessage }

type AutomapTitle struct{ Title string }

func (AutomapTitle) SimKind() SimKind { return SimAutomapTitle }

// AmmoTypes is the number of ammo pools reported in PlayerStatus.
const AmmoTypes = 4

// PlayerStatus is a snapshot of the player's HUD values.
type PlayerStatus struct {
	Health    int16
	Armor     int16
	ReadyAmmo int16 // -1 when the ready weapon uses no ammo
	Ammo      [AmmoTypes]int16
	MaxAmmo   [AmmoTypes]int16
	ArmsBits  uint8 // bits 0-5: weapon slots 2-7
	KeyBits   uint8 // bit 0 blue, 1 yellow, 2 red
}

func (PlayerStatus) SimKind() SimKind { return SimPlayerStatus }

// MenuType identifies which menu a Menu message describes.
type MenuType uint8

const (
	MenuMain MenuType = iota
	MenuEpisode
	MenuNewGame
	MenuOptions
	MenuReadMe1
	MenuReadMe2
	MenuSound
	MenuLoadGame
	MenuSaveGame
)

// Menu describes the active menu. Only the fields for Type are populated.
type Menu struct {
	Type     MenuType
	Items    []string
	Selected uint8

	// MenuOptions
	LowDetail        bool
	MessagesOn       bool
	MouseSensitivity int8
	ScreenSize       int8

	// MenuSound
	SFXVolume   int8
	MusicVolume int8

	// MenuLoadGame, MenuSaveGame
	SaveSlots    []string
	SaveSlotEdit int8 // -1 when no slot is being edited
}

func (Menu) SimKind() SimKind { return SimMenu }

// IntermissionState mirrors the simulation's intermission phase.
type IntermissionState int8

const (
	IntermissionNone    IntermissionState = -1
	IntermissionStats   IntermissionState = 0
	IntermissionNextLoc IntermissionState = 1
)

// Intermission carries end-of-level statistics when State is IntermissionStats.
type Intermission struct {
	State         IntermissionState
	KillsPercent  int32
	ItemsPercent  int32
	SecretPercent int32
	TimeSeconds   int32
	ParSeconds    int32
}

func (Intermission) SimKind() SimKind { return SimIntermission }

// FinaleText carries the finale text for a stage.
type FinaleText struct {
	Stage uint8
	Text  string
}

func (FinaleText) SimKind() SimKind { return SimFinaleText }

// Finale reports how many finale characters are currently revealed.
type Finale struct {
	TextLen uint16
}

func (Finale) SimKind() SimKind { return SimFinale }

// WantFrame asks the simulation for its next frame.
type WantFrame struct{}

func (WantFrame) ClientKind() ClientKind { return ClientWantFrame }

// PressKey is a key transition, or a mouse-button bitmask when Pressed is
// PressedMouseButtons.
type PressKey struct {
	Key     uint8
	Pressed uint8
}

func (PressKey) ClientKind() ClientKind { return ClientPressKey }

// MouseButtons reports whether the message carries a mouse bitmask.
func (p PressKey) MouseButtons() bool {
	return p.Pressed == PressedMouseButtons
}

// SetFrameShmName selects the shared memory object for frames. Empty disables it.
type SetFrameShmName struct {
	Name string
}

func (SetFrameShmName) ClientKind() ClientKind { return ClientSetFrameShmName }

// SetConfigVar sets a runtime configuration variable in the simulation.
type SetConfigVar struct {
	Name  string
	Value string
}

func (SetConfigVar) ClientKind() ClientKind { return ClientSetConfigVar }
