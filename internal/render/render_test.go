package render

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"pkt.systems/simlink/schema"
)

func solidFrame(w, h int, r, g, b byte) schema.Frame {
	px := make([]byte, w*h*3)
	for i := 0; i < len(px); i += 3 {
		px[i], px[i+1], px[i+2] = r, g, b
	}
	return schema.Frame{Width: w, Height: h, Pixels: px}
}

func TestCellsSolidRed(t *testing.T) {
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Mode: TrueColor, Cols: 4, Rows: 4})
	if err := c.Refresh(solidFrame(16, 16, 255, 0, 0)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := "\x1b[H\x1b[48;2;255;0;0m    \r\n    \r\n    \r\n    \x1b[0m"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
	if n := strings.Count(out.String(), "\x1b[48;"); n != 1 {
		t.Fatalf("expected one colour escape, got %d", n)
	}
	if n := strings.Count(out.String(), " "); n != 16 {
		t.Fatalf("expected 16 cells, got %d", n)
	}
}

func TestCells256Mode(t *testing.T) {
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Mode: Color256, Cols: 2, Rows: 1})
	_ = c.Refresh(solidFrame(4, 2, 255, 255, 255))
	want := "\x1b[H\x1b[48;5;231m  \x1b[0m"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestCellsColourChangesOnlyAtBoundaries(t *testing.T) {
	// left half blue, right half green
	f := schema.Frame{Width: 4, Height: 2, Pixels: make([]byte, 4*2*3)}
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			p := f.Pixels[(y*4+x)*3:]
			if x < 2 {
				p[2] = 200
			} else {
				p[1] = 200
			}
		}
	}
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Cols: 4, Rows: 2})
	_ = c.Refresh(f)
	want := "\x1b[H" +
		"\x1b[48;2;0;0;200m  \x1b[48;2;0;200;0m  \r\n" +
		"\x1b[48;2;0;0;200m  \x1b[48;2;0;200;0m  " +
		"\x1b[0m"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestCellsAverageRoundsHalfUp(t *testing.T) {
	f := schema.Frame{Width: 2, Height: 1, Pixels: []byte{0, 10, 255, 1, 11, 255}}
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Cols: 1, Rows: 1})
	_ = c.Refresh(f)
	if !strings.Contains(out.String(), "\x1b[48;2;1;11;255m") {
		t.Fatalf("expected half-up rounding, got %q", out.String())
	}
}

func TestCellsGridLargerThanFrame(t *testing.T) {
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Cols: 5, Rows: 3})
	if err := c.Refresh(solidFrame(2, 2, 1, 2, 3)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := strings.Count(out.String(), " "); n != 15 {
		t.Fatalf("expected 15 cells, got %d", n)
	}
}

func TestCellsResizeRedraws(t *testing.T) {
	var out bytes.Buffer
	c := NewCells(&out, CellOptions{Cols: 2, Rows: 2})
	frame := solidFrame(8, 8, 9, 9, 9)
	_ = c.Refresh(frame)
	c.Resize(3, 1)
	out.Reset()
	_ = c.Refresh(frame)
	if strings.Count(out.String(), " ") != 3 || strings.Contains(out.String(), "\r\n") {
		t.Fatalf("expected a single row of 3 cells, got %q", out.String())
	}
}

func TestSpanBounds(t *testing.T) {
	for _, tc := range []struct{ n, size int }{{4, 16}, {3, 10}, {7, 3}, {80, 320}, {1, 1}} {
		for i := 0; i < tc.n; i++ {
			lo, hi := span(i, tc.n, tc.size)
			if lo < 0 || hi > tc.size || hi <= lo {
				t.Fatalf("span(%d,%d,%d) = [%d,%d)", i, tc.n, tc.size, lo, hi)
			}
		}
	}
}

func TestQuantizeKnownColours(t *testing.T) {
	cases := []struct {
		r, g, b uint8
		want    uint8
	}{
		{0, 0, 0, 16},
		{255, 255, 255, 231},
		{255, 0, 0, 196},
		{128, 128, 128, 244},
		{8, 8, 8, 232},
	}
	for _, tc := range cases {
		if got := Quantize(tc.r, tc.g, tc.b); got != tc.want {
			t.Fatalf("Quantize(%d,%d,%d) expected %d, got %d", tc.r, tc.g, tc.b, tc.want, got)
		}
	}
}

func TestQuantizerDeterministicAndBounded(t *testing.T) {
	q := NewQuantizer()
	for i := 0; i < maxCacheEntries+100; i++ {
		r, g, b := uint8(i>>16), uint8(i>>8), uint8(i)
		if got, want := q.Index(r, g, b), Quantize(r, g, b); got != want {
			t.Fatalf("cached index %d differs from %d", got, want)
		}
	}
	if q.Len() > maxCacheEntries {
		t.Fatalf("expected cache bounded by %d, got %d", maxCacheEntries, q.Len())
	}
	if q.Index(12, 34, 56) != q.Index(12, 34, 56) {
		t.Fatalf("expected repeat lookups to agree")
	}
}

func TestCellsShareQuantizerAcrossInstances(t *testing.T) {
	var out bytes.Buffer
	first := NewCells(&out, CellOptions{Mode: Color256, Cols: 1, Rows: 1})
	_ = first.Refresh(solidFrame(2, 2, 12, 34, 56))
	second := NewCells(&out, CellOptions{Mode: Color256, Cols: 1, Rows: 1})
	if first.quant != second.quant || first.quant != processQuantizer {
		t.Fatalf("expected cells renderers to share the process quantizer")
	}
	if processQuantizer.Len() == 0 {
		t.Fatalf("expected the shared cache to keep entries after a renderer is dropped")
	}
	own := NewQuantizer()
	if c := NewCells(&out, CellOptions{Quantizer: own}); c.quant != own {
		t.Fatalf("expected injected quantizer to be used")
	}
}

func TestImageIDs(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := NewImageID()
		if !ValidImageID(id) {
			t.Fatalf("generated invalid id %#x", id)
		}
	}
	for _, id := range []uint32{0, 15 | 1<<24, 16, 16 | 1<<24 | 1<<8} {
		if ValidImageID(id) {
			t.Fatalf("expected %#x invalid", id)
		}
	}
	if _, err := NewOverlay(&bytes.Buffer{}, OverlayOptions{ID: 3}); err == nil {
		t.Fatalf("expected error for low id")
	}
}

const testID = 2<<24 | 40

func TestOverlayDirectTransmission(t *testing.T) {
	var out bytes.Buffer
	o, err := NewOverlay(&out, OverlayOptions{ID: testID, Cols: 2, Rows: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	frame := solidFrame(2, 2, 1, 2, 3)
	if err := o.Refresh(frame); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	payload := base64.StdEncoding.EncodeToString(frame.Pixels)
	want := "\x1b_Ga=T,U=1,f=24,s=2,v=2,i=33554472,c=2,r=1,q=2,t=d,m=0;" + payload + "\x1b\\" +
		"\x1b[H\x1b[38;5;40m" +
		"\U0010EEEE\u0305\u0305\u030E" +
		"\U0010EEEE\u0305\u030D\u030E" +
		"\x1b[39m"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestOverlayChunksLargePayload(t *testing.T) {
	var out bytes.Buffer
	o, _ := NewOverlay(&out, OverlayOptions{ID: testID, Cols: 4, Rows: 4})
	frame := solidFrame(64, 64, 7, 7, 7)
	_ = o.Refresh(frame)
	s := out.String()
	encoded := base64.StdEncoding.EncodedLen(len(frame.Pixels))
	chunks := (encoded + chunkSize - 1) / chunkSize
	if got := strings.Count(s, "\x1b_G"); got != chunks {
		t.Fatalf("expected %d graphics escapes, got %d", chunks, got)
	}
	if got := strings.Count(s, "m=1;"); got != chunks-1 {
		t.Fatalf("expected %d continuation chunks, got %d", chunks-1, got)
	}
	if !strings.Contains(s, "\x1b_Gq=2,m=0;") {
		t.Fatalf("expected final chunk marker")
	}
}

func TestOverlaySharedMemoryAndGridOnlyOnResize(t *testing.T) {
	var out bytes.Buffer
	o, _ := NewOverlay(&out, OverlayOptions{ID: testID, Cols: 3, Rows: 2})
	frame := schema.Frame{Width: 320, Height: 200, ShmName: "/simlink-abc"}
	_ = o.Refresh(frame)
	first := out.String()
	if !strings.Contains(first, ",t=s;"+base64.StdEncoding.EncodeToString([]byte("/simlink-abc"))+"\x1b\\") {
		t.Fatalf("expected shared memory transmission, got %q", first)
	}
	if strings.Count(first, string(placeholder)) != 6 {
		t.Fatalf("expected 6 placeholders in first refresh")
	}

	out.Reset()
	_ = o.Refresh(frame)
	if strings.ContainsRune(out.String(), placeholder) {
		t.Fatalf("expected no placeholder grid without resize")
	}
	if !strings.Contains(out.String(), "a=T") {
		t.Fatalf("expected image retransmitted every frame")
	}

	o.Resize(4, 2)
	out.Reset()
	_ = o.Refresh(frame)
	if strings.Count(out.String(), string(placeholder)) != 8 {
		t.Fatalf("expected grid redrawn after resize, got %q", out.String())
	}
	if !strings.Contains(out.String(), "c=4,r=2") {
		t.Fatalf("expected placement to follow grid size")
	}
}

func TestOverlayCloseDeletesOnce(t *testing.T) {
	var out bytes.Buffer
	o, _ := NewOverlay(&out, OverlayOptions{ID: testID, Cols: 1, Rows: 1})
	_ = o.Close()
	_ = o.Close()
	want := "\x1b_Ga=d,d=I,i=33554472,q=2\x1b\\"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
	if err := o.Refresh(solidFrame(1, 1, 0, 0, 0)); err == nil {
		t.Fatalf("expected refresh after close to fail")
	}
}

func TestScreenSanitizesTitle(t *testing.T) {
	var out bytes.Buffer
	s := NewScreen(&out)
	_ = s.SetTitle("E1M1\x07\x1b[2J")
	if out.String() != "\x1b]0;E1M1[2J\x07" {
		t.Fatalf("unexpected title sequence %q", out.String())
	}
	out.Reset()
	_ = s.StatusLine(24, 5, "health 100")
	if out.String() != "\x1b[24;1H\x1b[0m\x1b[2Khealt" {
		t.Fatalf("unexpected status line %q", out.String())
	}
}

func TestParseKindAndColorMode(t *testing.T) {
	if k, err := ParseKind("kitty"); err != nil || k != KindOverlay {
		t.Fatalf("expected overlay, got %q (%v)", k, err)
	}
	if k, err := ParseKind(""); err != nil || k != KindCells {
		t.Fatalf("expected cells default, got %q (%v)", k, err)
	}
	if _, err := ParseKind("sixel"); err == nil {
		t.Fatalf("expected error for unknown renderer")
	}
	if m, err := ParseColorMode("256"); err != nil || m != Color256 {
		t.Fatalf("expected 256, got %q (%v)", m, err)
	}
}
