package parser

import (
	"fmt"

	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

// NewClient returns the display side parser for simulation messages. res is
// the resolution from the handshake and sizes every frame payload.
func NewClient(ring *ringbuf.Ring, res schema.Resolution, limits Limits, h Handler[schema.SimMessage]) (*Parser[schema.SimMessage], error) {
	if !res.Valid() {
		return nil, fmt.Errorf("invalid resolution %s", res)
	}
	p, err := newParser(ring, limits, h)
	if err != nil {
		return nil, err
	}
	p.name = func(m schema.SimMessage) string { return m.SimKind().String() }
	p.start = func(kind uint8) (decoder[schema.SimMessage], error) {
		return startSim(schema.SimKind(kind), res)
	}
	return p, nil
}

func startSim(kind schema.SimKind, res schema.Resolution) (decoder[schema.SimMessage], error) {
	switch kind {
	case schema.SimFrame:
		return &frameDecoder{res: res}, nil
	case schema.SimSetTitle:
		return &simString{build: func(s string) schema.SimMessage { return schema.SetTitle{Title: s} }}, nil
	case schema.SimQuit:
		return bare[schema.SimMessage]{msg: schema.Quit{}}, nil
	case schema.SimFrameShmReady:
		return bare[schema.SimMessage]{msg: schema.FrameShmReady{}}, nil
	case schema.SimGameMessage:
		return &simString{build: func(s string) schema.SimMessage { return schema.GameMessage{Text: s} }}, nil
	case schema.SimPlayerStatus:
		return &playerStatusDecoder{}, nil
	case schema.SimMenuMessage:
		return &simString{build: func(s string) schema.SimMessage { return schema.MenuMessage{Text: s} }}, nil
	case schema.SimAutomapTitle:
		return &simString{build: func(s string) schema.SimMessage { return schema.AutomapTitle{Title: s} }}, nil
	case schema.SimMenu:
		return &menuDecoder{}, nil
	case schema.SimIntermission:
		return &intermissionDecoder{}, nil
	case schema.SimFinaleText:
		return &finaleTextDecoder{}, nil
	case schema.SimFinale:
		return &finaleDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: simulation kind %d", schema.ErrUnknownKind, uint8(kind))
	}
}

// bare is a message with no payload.
type bare[M any] struct {
	msg M
}

func (b bare[M]) step(*source) (M, bool, error) {
	return b.msg, true, nil
}

type simString struct {
	f     stringField
	build func(string) schema.SimMessage
}

func (d *simString) step(src *source) (schema.SimMessage, bool, error) {
	s, ok, err := d.f.read(src)
	if err != nil || !ok {
		return nil, false, err
	}
	return d.build(s), true, nil
}

type frameDecoder struct {
	res    schema.Resolution
	pixels []byte
	off    int
}

func (d *frameDecoder) step(src *source) (schema.SimMessage, bool, error) {
	if d.pixels == nil {
		d.pixels = make([]byte, d.res.FrameBytes())
	}
	if d.off < len(d.pixels) {
		d.off += src.ring.ReadSome(d.pixels[d.off:])
		if d.off < len(d.pixels) {
			return nil, false, nil
		}
	}
	dui, ok := wire.ReadU8(src.ring)
	if !ok {
		return nil, false, nil
	}
	return schema.Frame{
		Width:      d.res.Width,
		Height:     d.res.Height,
		Pixels:     d.pixels,
		DetachedUI: schema.DetachedUI(dui),
	}, true, nil
}

type playerStatusDecoder struct {
	stage int
	st    schema.PlayerStatus
}

func (d *playerStatusDecoder) step(src *source) (schema.SimMessage, bool, error) {
	// stages 0..10 are the eleven i16 fields in wire order
	for d.stage < 11 {
		v, ok := wire.ReadI16(src.ring)
		if !ok {
			return nil, false, nil
		}
		switch {
		case d.stage == 0:
			d.st.Health = v
		case d.stage == 1:
			d.st.Armor = v
		case d.stage == 2:
			d.st.ReadyAmmo = v
		case d.stage < 3+schema.AmmoTypes:
			d.st.Ammo[d.stage-3] = v
		default:
			d.st.MaxAmmo[d.stage-3-schema.AmmoTypes] = v
		}
		d.stage++
	}
	if d.stage == 11 {
		v, ok := wire.ReadU8(src.ring)
		if !ok {
			return nil, false, nil
		}
		d.st.ArmsBits = v
		d.stage++
	}
	v, ok := wire.ReadU8(src.ring)
	if !ok {
		return nil, false, nil
	}
	d.st.KeyBits = v
	return d.st, true, nil
}

type menuDecoder struct {
	stage int
	m     schema.Menu
	items stringList
	slots stringList
}

const (
	menuType = iota
	menuItems
	menuSelected
	menuExtra1
	menuExtra2
	menuExtra3
	menuDone
)

func (d *menuDecoder) step(src *source) (schema.SimMessage, bool, error) {
	for d.stage < menuDone {
		switch d.stage {
		case menuType:
			v, ok := wire.ReadU8(src.ring)
			if !ok {
				return nil, false, nil
			}
			d.m.Type = schema.MenuType(v)
			if d.m.Type > schema.MenuSaveGame {
				return nil, false, fmt.Errorf("%w: menu type %d", schema.ErrUnknownKind, v)
			}
		case menuItems:
			items, ok, err := d.items.read(src)
			if err != nil || !ok {
				return nil, false, err
			}
			d.m.Items = items
		case menuSelected:
			v, ok := wire.ReadU8(src.ring)
			if !ok {
				return nil, false, nil
			}
			d.m.Selected = v
		default:
			ok, err := d.extra(src)
			if err != nil || !ok {
				return nil, false, err
			}
		}
		d.stage++
	}
	return d.m, true, nil
}

// extra decodes the per-type trailer field for the current stage.
func (d *menuDecoder) extra(src *source) (bool, error) {
	switch d.m.Type {
	case schema.MenuOptions:
		v, ok := wire.ReadU8(src.ring)
		if !ok {
			return false, nil
		}
		switch d.stage {
		case menuExtra1:
			d.m.MessagesOn = v&wire.OptionMessagesOn != 0
			d.m.LowDetail = v&wire.OptionLowDetail != 0
		case menuExtra2:
			d.m.MouseSensitivity = int8(v)
		case menuExtra3:
			d.m.ScreenSize = int8(v)
		}
	case schema.MenuSound:
		if d.stage == menuExtra3 {
			return true, nil
		}
		v, ok := wire.ReadI8(src.ring)
		if !ok {
			return false, nil
		}
		if d.stage == menuExtra1 {
			d.m.SFXVolume = v
		} else {
			d.m.MusicVolume = v
		}
	case schema.MenuLoadGame, schema.MenuSaveGame:
		switch d.stage {
		case menuExtra1:
			slots, ok, err := d.slots.read(src)
			if err != nil || !ok {
				return false, err
			}
			d.m.SaveSlots = slots
		case menuExtra2:
			v, ok := wire.ReadI8(src.ring)
			if !ok {
				return false, nil
			}
			d.m.SaveSlotEdit = v
		}
	}
	return true, nil
}

type intermissionDecoder struct {
	stage int
	im    schema.Intermission
}

func (d *intermissionDecoder) step(src *source) (schema.SimMessage, bool, error) {
	if d.stage == 0 {
		v, ok := wire.ReadI8(src.ring)
		if !ok {
			return nil, false, nil
		}
		d.im.State = schema.IntermissionState(v)
		d.stage++
		if d.im.State != schema.IntermissionStats {
			return d.im, true, nil
		}
	}
	fields := [...]*int32{
		&d.im.KillsPercent,
		&d.im.ItemsPercent,
		&d.im.SecretPercent,
		&d.im.TimeSeconds,
		&d.im.ParSeconds,
	}
	for d.stage <= len(fields) {
		v, ok := wire.ReadI32(src.ring)
		if !ok {
			return nil, false, nil
		}
		*fields[d.stage-1] = v
		d.stage++
	}
	return d.im, true, nil
}

type finaleTextDecoder struct {
	haveStage bool
	stage     uint8
	text      stringField
}

func (d *finaleTextDecoder) step(src *source) (schema.SimMessage, bool, error) {
	if !d.haveStage {
		v, ok := wire.ReadU8(src.ring)
		if !ok {
			return nil, false, nil
		}
		d.stage = v
		d.haveStage = true
	}
	s, ok, err := d.text.read(src)
	if err != nil || !ok {
		return nil, false, err
	}
	return schema.FinaleText{Stage: d.stage, Text: s}, true, nil
}

type finaleDecoder struct{}

func (finaleDecoder) step(src *source) (schema.SimMessage, bool, error) {
	v, ok := wire.ReadU16(src.ring)
	if !ok {
		return nil, false, nil
	}
	return schema.Finale{TextLen: v}, true, nil
}
