package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"pkt.systems/simlink/schema"
)

// placeholder is the kitty Unicode placeholder base character.
const placeholder = '\U0010EEEE'

// chunkSize is the largest base64 payload per graphics escape.
const chunkSize = 4096

type OverlayOptions struct {
	Cols int
	Rows int
	// ID fixes the image id; zero allocates one.
	ID uint32
}

// Overlay transmits each frame as a kitty graphics image with a virtual
// placement and shows it through a grid of placeholder characters. The
// image id is encoded in the placeholder foreground colour (low byte) and a
// third diacritic (high byte).
type Overlay struct {
	w          io.Writer
	id         uint32
	cols, rows int
	gridCols   int
	gridRows   int
	closed     bool
	buf        bytes.Buffer
}

// NewImageID returns an id whose low byte is in [16,255] and high byte in
// [1,255], with the middle bytes zero.
func NewImageID() uint32 {
	lo := uint32(16 + rand.IntN(240))
	hi := uint32(1 + rand.IntN(255))
	return hi<<24 | lo
}

// ValidImageID reports whether id can be addressed by placeholders.
func ValidImageID(id uint32) bool {
	lo, hi := id&0xff, id>>24
	return lo >= 16 && hi >= 1 && id&0x00ffff00 == 0
}

func NewOverlay(w io.Writer, opt OverlayOptions) (*Overlay, error) {
	id := opt.ID
	if id == 0 {
		id = NewImageID()
	}
	if !ValidImageID(id) {
		return nil, fmt.Errorf("image id %#x is not placeholder addressable", id)
	}
	return &Overlay{w: w, id: id, cols: opt.Cols, rows: opt.Rows}, nil
}

func (o *Overlay) Name() string { return string(KindOverlay) }

// ID returns the image id.
func (o *Overlay) ID() uint32 { return o.id }

func (o *Overlay) Resize(cols, rows int) {
	o.cols, o.rows = clampGrid(cols), clampGrid(rows)
}

func clampGrid(n int) int {
	if n > len(placeholderDiacritics) {
		return len(placeholderDiacritics)
	}
	return n
}

// Refresh transmits the frame and, when the grid size changed, redraws the
// placeholder grid.
func (o *Overlay) Refresh(frame schema.Frame) error {
	if o.closed {
		return schema.ErrClosed
	}
	cols, rows := clampGrid(o.cols), clampGrid(o.rows)
	if cols <= 0 || rows <= 0 || frame.Width <= 0 || frame.Height <= 0 {
		return nil
	}
	o.buf.Reset()
	switch {
	case frame.ShmName != "":
		o.control(frame, cols, rows)
		o.buf.WriteString(",t=s;")
		o.buf.WriteString(base64.StdEncoding.EncodeToString([]byte(frame.ShmName)))
		o.buf.WriteString("\x1b\\")
	case len(frame.Pixels) >= frame.Width*frame.Height*3:
		payload := base64.StdEncoding.EncodeToString(frame.Pixels[:frame.Width*frame.Height*3])
		first := true
		for len(payload) > 0 {
			n := min(chunkSize, len(payload))
			more := 0
			if n < len(payload) {
				more = 1
			}
			if first {
				o.control(frame, cols, rows)
				o.buf.WriteString(",t=d,m=")
				first = false
			} else {
				o.buf.WriteString("\x1b_Gq=2,m=")
			}
			o.buf.WriteString(strconv.Itoa(more))
			o.buf.WriteByte(';')
			o.buf.WriteString(payload[:n])
			o.buf.WriteString("\x1b\\")
			payload = payload[n:]
		}
	default:
		return nil
	}
	if cols != o.gridCols || rows != o.gridRows {
		o.writeGrid(cols, rows)
		o.gridCols, o.gridRows = cols, rows
	}
	_, err := o.w.Write(o.buf.Bytes())
	return err
}

func (o *Overlay) control(frame schema.Frame, cols, rows int) {
	fmt.Fprintf(&o.buf, "\x1b_Ga=T,U=1,f=24,s=%d,v=%d,i=%d,c=%d,r=%d,q=2",
		frame.Width, frame.Height, o.id, cols, rows)
}

func (o *Overlay) writeGrid(cols, rows int) {
	hi := placeholderDiacritics[o.id>>24]
	o.buf.WriteString("\x1b[H\x1b[38;5;")
	o.buf.WriteString(strconv.Itoa(int(o.id & 0xff)))
	o.buf.WriteByte('m')
	for row := 0; row < rows; row++ {
		if row > 0 {
			o.buf.WriteString("\r\n")
		}
		for col := 0; col < cols; col++ {
			o.buf.WriteRune(placeholder)
			o.buf.WriteRune(placeholderDiacritics[row])
			o.buf.WriteRune(placeholderDiacritics[col])
			o.buf.WriteRune(hi)
		}
	}
	o.buf.WriteString("\x1b[39m")
}

// Close deletes the image and its placements from the terminal once.
func (o *Overlay) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	_, err := fmt.Fprintf(o.w, "\x1b_Ga=d,d=I,i=%d,q=2\x1b\\", o.id)
	return err
}
