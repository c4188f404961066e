package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pkt.systems/simlink/internal/ringbuf"
	"pkt.systems/simlink/schema"
)

func TestHandshakeLayout(t *testing.T) {
	got, err := EncodeHandshake(schema.Handshake{Version: 1, Resolution: schema.Resolution{Width: 320, Height: 200}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{1, 0, 0, 0, 0x40, 0x01, 0xc8, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % x, got % x", want, got)
	}
	h, err := DecodeHandshake(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Version != 1 || h.Resolution.Width != 320 || h.Resolution.Height != 200 {
		t.Fatalf("unexpected handshake: %+v", h)
	}
	if _, err := DecodeHandshake(got[:5]); !errors.Is(err, schema.ErrTruncated) {
		t.Fatalf("expected truncated error, got %v", err)
	}
}

func TestStringLayout(t *testing.T) {
	buf := NewBuffer(16)
	if err := WriteSetTitle(buf, "DOOM"); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := []byte{byte(schema.SimSetTitle), 4, 0, 'D', 'O', 'O', 'M'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("expected % x, got % x", want, buf.Bytes())
	}
}

func TestStringTooLongWritesNothing(t *testing.T) {
	buf := NewBuffer(16)
	err := WriteGameMessage(buf, strings.Repeat("x", schema.MaxWireString+1))
	if !errors.Is(err, schema.ErrStringTooLong) {
		t.Fatalf("expected ErrStringTooLong, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written, got %d", buf.Len())
	}
	if err := WriteString(buf, strings.Repeat("x", schema.MaxWireString)); err != nil {
		t.Fatalf("expected max length string to encode, got %v", err)
	}
}

func TestPressKeyLayout(t *testing.T) {
	buf := NewBuffer(8)
	_ = WritePressKey(buf, schema.KeyUpArrow, true)
	_ = WritePressKey(buf, schema.KeyUpArrow, false)
	_ = WriteMouseButtons(buf, schema.MouseLeft|schema.MouseMiddle)
	want := []byte{
		1, schema.KeyUpArrow, 1,
		1, schema.KeyUpArrow, 0,
		1, 0x05, 0xff,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("expected % x, got % x", want, buf.Bytes())
	}
}

func TestPlayerStatusLayout(t *testing.T) {
	buf := NewBuffer(32)
	st := schema.PlayerStatus{Health: 100, Armor: -1, ReadyAmmo: 50, ArmsBits: 3, KeyBits: 4}
	st.Ammo[0] = 50
	st.MaxAmmo[0] = 200
	if err := WritePlayerStatus(buf, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := buf.Bytes()
	if len(got) != 1+2*11+2 {
		t.Fatalf("expected 25 bytes, got %d", len(got))
	}
	if got[0] != byte(schema.SimPlayerStatus) || got[1] != 100 || got[3] != 0xff || got[4] != 0xff {
		t.Fatalf("unexpected header bytes % x", got[:5])
	}
	if got[len(got)-2] != 3 || got[len(got)-1] != 4 {
		t.Fatalf("unexpected trailing bits % x", got[len(got)-2:])
	}
}

func TestMenuOptionsToggleLayout(t *testing.T) {
	cases := []struct {
		menu schema.Menu
		want byte
	}{
		{schema.Menu{Type: schema.MenuOptions, LowDetail: true}, 0x01},
		{schema.Menu{Type: schema.MenuOptions, MessagesOn: true}, 0x02},
		{schema.Menu{Type: schema.MenuOptions, LowDetail: true, MessagesOn: true}, 0x03},
	}
	for _, tc := range cases {
		buf := NewBuffer(32)
		if err := WriteMenu(buf, tc.menu); err != nil {
			t.Fatalf("write: %v", err)
		}
		got := buf.Bytes()
		// kind, type, item count u16, selected, toggles
		if len(got) != 8 {
			t.Fatalf("expected 8 bytes, got %d (% x)", len(got), got)
		}
		if got[5] != tc.want {
			t.Fatalf("expected toggles %#x, got %#x", tc.want, got[5])
		}
	}
}

func TestIntermissionOmitsStatsOutsideStatCount(t *testing.T) {
	buf := NewBuffer(32)
	_ = WriteIntermission(buf, schema.Intermission{State: schema.IntermissionNextLoc, KillsPercent: 10})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 bytes, got %d", buf.Len())
	}
	buf.Reset()
	_ = WriteIntermission(buf, schema.Intermission{State: schema.IntermissionStats})
	if buf.Len() != 2+5*4 {
		t.Fatalf("expected 22 bytes, got %d", buf.Len())
	}
}

func TestReadPrimitivesSuspend(t *testing.T) {
	r, _ := ringbuf.New(16)
	r.Write([]byte{0x34})
	if _, ok := ReadU16(r); ok {
		t.Fatalf("expected u16 read to suspend")
	}
	if r.Len() != 1 {
		t.Fatalf("expected partial field to stay buffered")
	}
	r.Write([]byte{0x12, 0xfe, 0xff, 0xff, 0xff})
	v, ok := ReadU16(r)
	if !ok || v != 0x1234 {
		t.Fatalf("expected 0x1234, got %#x", v)
	}
	i, ok := ReadI32(r)
	if !ok || i != -2 {
		t.Fatalf("expected -2, got %d", i)
	}
}

type failingEncoder struct {
	Buffer
	after int
}

func (f *failingEncoder) WriteU8(v uint8) error {
	if f.after == 0 {
		return schema.ErrPeerClosed
	}
	f.after--
	return f.Buffer.WriteU8(v)
}

func TestEncodeStopsAtFirstError(t *testing.T) {
	enc := &failingEncoder{after: 1}
	err := WriteMenu(enc, schema.Menu{Type: schema.MenuMain, Items: []string{"a"}})
	if !errors.Is(err, schema.ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}
