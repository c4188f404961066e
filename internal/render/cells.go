package render

import (
	"bytes"
	"io"
	"strconv"

	"pkt.systems/simlink/schema"
)

type CellOptions struct {
	Mode ColorMode
	Cols int
	Rows int
	// Quantizer caches 256-colour lookups; nil uses the process-wide one.
	Quantizer *Quantizer
}

// Cells draws each grid cell as a space whose background is the average
// colour of the pixel block it covers.
type Cells struct {
	w     io.Writer
	mode  ColorMode
	cols  int
	rows  int
	quant *Quantizer
	buf   bytes.Buffer
}

func NewCells(w io.Writer, opt CellOptions) *Cells {
	if opt.Mode == "" {
		opt.Mode = TrueColor
	}
	if opt.Quantizer == nil {
		opt.Quantizer = processQuantizer
	}
	return &Cells{w: w, mode: opt.Mode, cols: opt.Cols, rows: opt.Rows, quant: opt.Quantizer}
}

func (c *Cells) Name() string { return string(KindCells) }

func (c *Cells) Resize(cols, rows int) {
	c.cols, c.rows = cols, rows
}

func (c *Cells) Close() error { return nil }

// Refresh redraws the whole grid. Frames without inline pixels are ignored.
func (c *Cells) Refresh(frame schema.Frame) error {
	if c.cols <= 0 || c.rows <= 0 || frame.Width <= 0 || frame.Height <= 0 {
		return nil
	}
	if len(frame.Pixels) < frame.Width*frame.Height*3 {
		return nil
	}
	c.buf.Reset()
	c.buf.WriteString("\x1b[H")
	var (
		prev    uint32
		hasPrev bool
	)
	for row := 0; row < c.rows; row++ {
		if row > 0 {
			c.buf.WriteString("\r\n")
		}
		y0, y1 := span(row, c.rows, frame.Height)
		for col := 0; col < c.cols; col++ {
			x0, x1 := span(col, c.cols, frame.Width)
			r, g, b := average(frame, x0, x1, y0, y1)
			key := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
			if c.mode == Color256 {
				key = uint32(c.quant.Index(r, g, b))
			}
			if !hasPrev || key != prev {
				c.writeColor(r, g, b, key)
				prev, hasPrev = key, true
			}
			c.buf.WriteByte(' ')
		}
	}
	c.buf.WriteString("\x1b[0m")
	_, err := c.w.Write(c.buf.Bytes())
	return err
}

func (c *Cells) writeColor(r, g, b uint8, key uint32) {
	if c.mode == Color256 {
		c.buf.WriteString("\x1b[48;5;")
		c.buf.WriteString(strconv.Itoa(int(key)))
		c.buf.WriteByte('m')
		return
	}
	c.buf.WriteString("\x1b[48;2;")
	c.buf.WriteString(strconv.Itoa(int(r)))
	c.buf.WriteByte(';')
	c.buf.WriteString(strconv.Itoa(int(g)))
	c.buf.WriteByte(';')
	c.buf.WriteString(strconv.Itoa(int(b)))
	c.buf.WriteByte('m')
}

// span returns the pixel range [lo, hi) covered by cell i of n along an
// axis of size pixels. Every cell covers at least one pixel.
func span(i, n, size int) (int, int) {
	lo := i * size / n
	hi := (i + 1) * size / n
	if lo >= size {
		lo = size - 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	if hi > size {
		hi = size
	}
	return lo, hi
}

func average(frame schema.Frame, x0, x1, y0, y1 int) (uint8, uint8, uint8) {
	var sr, sg, sb int
	n := (x1 - x0) * (y1 - y0)
	stride := frame.Width * 3
	for y := y0; y < y1; y++ {
		row := frame.Pixels[y*stride : (y+1)*stride]
		for x := x0; x < x1; x++ {
			p := row[x*3 : x*3+3]
			sr += int(p[0])
			sg += int(p[1])
			sb += int(p[2])
		}
	}
	return avg(sr, n), avg(sg, n), avg(sb, n)
}

func avg(sum, n int) uint8 {
	v := (sum + n/2) / n
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}
