package wire

import (
	"encoding/binary"
	"fmt"

	"pkt.systems/simlink/schema"
)

// Menu option toggle bits.
const (
	OptionLowDetail uint8 = 1 << iota
	OptionMessagesOn
)

// EncodeHandshake returns the 8 byte handshake. It carries no kind byte.
func EncodeHandshake(h schema.Handshake) ([]byte, error) {
	if !h.Resolution.Valid() {
		return nil, fmt.Errorf("handshake resolution %s out of range", h.Resolution)
	}
	out := make([]byte, schema.HandshakeSize)
	binary.LittleEndian.PutUint32(out[0:4], h.Version)
	binary.LittleEndian.PutUint16(out[4:6], uint16(h.Resolution.Width))
	binary.LittleEndian.PutUint16(out[6:8], uint16(h.Resolution.Height))
	return out, nil
}

// DecodeHandshake parses an 8 byte handshake. The version is returned as
// sent; callers compare it.
func DecodeHandshake(p []byte) (schema.Handshake, error) {
	if len(p) != schema.HandshakeSize {
		return schema.Handshake{}, fmt.Errorf("%w: handshake is %d bytes", schema.ErrTruncated, len(p))
	}
	return schema.Handshake{
		Version: binary.LittleEndian.Uint32(p[0:4]),
		Resolution: schema.Resolution{
			Width:  int(binary.LittleEndian.Uint16(p[4:6])),
			Height: int(binary.LittleEndian.Uint16(p[6:8])),
		},
	}, nil
}

// WriteFrame writes an inline frame. len(pixels) must match the negotiated
// resolution; the receiver sizes the payload from the handshake.
func WriteFrame(e Encoder, pixels []byte, detached schema.DetachedUI) error {
	s := seq{e: e}
	s.u8(uint8(schema.SimFrame))
	s.bytes(pixels)
	s.u8(uint8(detached))
	return s.err
}

func WriteSetTitle(e Encoder, title string) error {
	return kindString(e, uint8(schema.SimSetTitle), title)
}

func WriteQuit(e Encoder) error {
	return kindOnly(e, uint8(schema.SimQuit))
}

func WriteFrameShmReady(e Encoder) error {
	return kindOnly(e, uint8(schema.SimFrameShmReady))
}

func WriteGameMessage(e Encoder, text string) error {
	return kindString(e, uint8(schema.SimGameMessage), text)
}

func WriteMenuMessage(e Encoder, text string) error {
	return kindString(e, uint8(schema.SimMenuMessage), text)
}

func WriteAutomapTitle(e Encoder, title string) error {
	return kindString(e, uint8(schema.SimAutomapTitle), title)
}

func WritePlayerStatus(e Encoder, st schema.PlayerStatus) error {
	s := seq{e: e}
	s.u8(uint8(schema.SimPlayerStatus))
	s.u16(uint16(st.Health))
	s.u16(uint16(st.Armor))
	s.u16(uint16(st.ReadyAmmo))
	for _, v := range st.Ammo {
		s.u16(uint16(v))
	}
	for _, v := range st.MaxAmmo {
		s.u16(uint16(v))
	}
	s.u8(st.ArmsBits)
	s.u8(st.KeyBits)
	return s.err
}

func WriteMenu(e Encoder, m schema.Menu) error {
	if err := checkStrings(m.Items); err != nil {
		return err
	}
	if err := checkStrings(m.SaveSlots); err != nil {
		return err
	}
	s := seq{e: e}
	s.u8(uint8(schema.SimMenu))
	s.u8(uint8(m.Type))
	s.strs(m.Items)
	s.u8(m.Selected)
	switch m.Type {
	case schema.MenuOptions:
		var toggles uint8
		if m.MessagesOn {
			toggles |= OptionMessagesOn
		}
		if m.LowDetail {
			toggles |= OptionLowDetail
		}
		s.u8(toggles)
		s.u8(uint8(m.MouseSensitivity))
		s.u8(uint8(m.ScreenSize))
	case schema.MenuSound:
		s.u8(uint8(m.SFXVolume))
		s.u8(uint8(m.MusicVolume))
	case schema.MenuLoadGame, schema.MenuSaveGame:
		s.strs(m.SaveSlots)
		s.u8(uint8(m.SaveSlotEdit))
	}
	return s.err
}

func WriteIntermission(e Encoder, im schema.Intermission) error {
	s := seq{e: e}
	s.u8(uint8(schema.SimIntermission))
	s.u8(uint8(im.State))
	if im.State == schema.IntermissionStats {
		s.u32(uint32(im.KillsPercent))
		s.u32(uint32(im.ItemsPercent))
		s.u32(uint32(im.SecretPercent))
		s.u32(uint32(im.TimeSeconds))
		s.u32(uint32(im.ParSeconds))
	}
	return s.err
}

func WriteFinaleText(e Encoder, stage uint8, text string) error {
	if err := checkString(text); err != nil {
		return err
	}
	s := seq{e: e}
	s.u8(uint8(schema.SimFinaleText))
	s.u8(stage)
	s.str(text)
	return s.err
}

func WriteFinale(e Encoder, textLen uint16) error {
	s := seq{e: e}
	s.u8(uint8(schema.SimFinale))
	s.u16(textLen)
	return s.err
}

// WriteSimMessage encodes any simulation message except inline frames,
// which need the pixel payload passed to WriteFrame.
func WriteSimMessage(e Encoder, msg schema.SimMessage) error {
	switch m := msg.(type) {
	case schema.Frame:
		return WriteFrame(e, m.Pixels, m.DetachedUI)
	case schema.SetTitle:
		return WriteSetTitle(e, m.Title)
	case schema.Quit:
		return WriteQuit(e)
	case schema.FrameShmReady:
		return WriteFrameShmReady(e)
	case schema.GameMessage:
		return WriteGameMessage(e, m.Text)
	case schema.PlayerStatus:
		return WritePlayerStatus(e, m)
	case schema.MenuMessage:
		return WriteMenuMessage(e, m.Text)
	case schema.AutomapTitle:
		return WriteAutomapTitle(e, m.Title)
	case schema.Menu:
		return WriteMenu(e, m)
	case schema.Intermission:
		return WriteIntermission(e, m)
	case schema.FinaleText:
		return WriteFinaleText(e, m.Stage, m.Text)
	case schema.Finale:
		return WriteFinale(e, m.TextLen)
	default:
		return fmt.Errorf("%w: %T", schema.ErrUnknownKind, msg)
	}
}

func WriteWantFrame(e Encoder) error {
	return kindOnly(e, uint8(schema.ClientWantFrame))
}

func WritePressKey(e Encoder, key uint8, pressed bool) error {
	var p uint8
	if pressed {
		p = 1
	}
	s := seq{e: e}
	s.u8(uint8(schema.ClientPressKey))
	s.u8(key)
	s.u8(p)
	return s.err
}

// WriteMouseButtons sends the full mouse button bitmask.
func WriteMouseButtons(e Encoder, mask uint8) error {
	s := seq{e: e}
	s.u8(uint8(schema.ClientPressKey))
	s.u8(mask)
	s.u8(schema.PressedMouseButtons)
	return s.err
}

func WriteSetFrameShmName(e Encoder, name string) error {
	return kindString(e, uint8(schema.ClientSetFrameShmName), name)
}

func WriteSetConfigVar(e Encoder, name, value string) error {
	if err := checkStrings([]string{name, value}); err != nil {
		return err
	}
	s := seq{e: e}
	s.u8(uint8(schema.ClientSetConfigVar))
	s.str(name)
	s.str(value)
	return s.err
}

// WriteClientMessage encodes any client message.
func WriteClientMessage(e Encoder, msg schema.ClientMessage) error {
	switch m := msg.(type) {
	case schema.WantFrame:
		return WriteWantFrame(e)
	case schema.PressKey:
		s := seq{e: e}
		s.u8(uint8(schema.ClientPressKey))
		s.u8(m.Key)
		s.u8(m.Pressed)
		return s.err
	case schema.SetFrameShmName:
		return WriteSetFrameShmName(e, m.Name)
	case schema.SetConfigVar:
		return WriteSetConfigVar(e, m.Name, m.Value)
	default:
		return fmt.Errorf("%w: %T", schema.ErrUnknownKind, msg)
	}
}
