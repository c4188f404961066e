package parser

import (
	"fmt"

	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/internal/wire"
	"pkt.systems/simlink/schema"
)

// NewSim returns the simulation side parser for display messages.
func NewSim(ring *ringbuf.Ring, limits Limits, h Handler[schema.ClientMessage]) (*Parser[schema.ClientMessage], error) {
	p, err := newParser(ring, limits, h)
	if err != nil {
		return nil, err
	}
	p.name = func(m schema.ClientMessage) string { return m.ClientKind().String() }
	p.start = startClient
	return p, nil
}

func startClient(kind uint8) (decoder[schema.ClientMessage], error) {
	switch schema.ClientKind(kind) {
	case schema.ClientWantFrame:
		return bare[schema.ClientMessage]{msg: schema.WantFrame{}}, nil
	case schema.ClientPressKey:
		return &pressKeyDecoder{}, nil
	case schema.ClientSetFrameShmName:
		return &shmNameDecoder{}, nil
	case schema.ClientSetConfigVar:
		return &configVarDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: client kind %d", schema.ErrUnknownKind, kind)
	}
}

type pressKeyDecoder struct {
	haveKey bool
	key     uint8
}

func (d *pressKeyDecoder) step(src *source) (schema.ClientMessage, bool, error) {
	if !d.haveKey {
		v, ok := wire.ReadU8(src.ring)
		if !ok {
			return nil, false, nil
		}
		d.key = v
		d.haveKey = true
	}
	pressed, ok := wire.ReadU8(src.ring)
	if !ok {
		return nil, false, nil
	}
	return schema.PressKey{Key: d.key, Pressed: pressed}, true, nil
}

type shmNameDecoder struct {
	f stringField
}

func (d *shmNameDecoder) step(src *source) (schema.ClientMessage, bool, error) {
	s, ok, err := d.f.readMax(src, schema.MaxShmNameLen)
	if err != nil || !ok {
		return nil, false, err
	}
	return schema.SetFrameShmName{Name: s}, true, nil
}

type configVarDecoder struct {
	haveName bool
	name     string
	f        stringField
}

func (d *configVarDecoder) step(src *source) (schema.ClientMessage, bool, error) {
	if !d.haveName {
		s, ok, err := d.f.readMax(src, schema.MaxConfigNameLen)
		if err != nil || !ok {
			return nil, false, err
		}
		d.name = s
		d.haveName = true
	}
	s, ok, err := d.f.readMax(src, schema.MaxConfigValueLen)
	if err != nil || !ok {
		return nil, false, err
	}
	return schema.SetConfigVar{Name: d.name, Value: s}, true, nil
}
