// Package demo is a small deterministic simulation used to exercise the link
// without a game: colour bars with a marker steered by the arrow keys.
package demo

import (
	"fmt"
	"strconv"

	"pkt.systems/simlink/schema"
	"pkt.systems/simlink/sim"
)

const (
	Width      = 320
	Height     = 200
	markerSize = 8
	flashTicks = 4
	maxSpeed   = 16
	startAmmo  = 50
)

var bars = [...][3]uint8{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
	{16, 16, 16},
}

var markerColors = [...][3]uint8{
	{255, 255, 255},
	{255, 64, 64},
	{64, 255, 64},
	{255, 64, 255},
	{64, 64, 255},
	{255, 255, 64},
	{64, 255, 255},
	{255, 160, 0},
}

var menuItems = []string{"resume", "options", "quit"}

// Pattern implements sim.Simulation.
type Pattern struct {
	x, y     int
	speed    int
	held     map[uint8]bool
	mouse    uint8
	flash    int
	ammo     int16
	menuOpen bool
	menuSel  uint8
	automap  bool
	tick     int

	titleSent bool
	pending   []schema.SimMessage
}

func New() *Pattern {
	return &Pattern{
		x:     (Width - markerSize) / 2,
		y:     (Height - markerSize) / 2,
		speed: 2,
		held:  make(map[uint8]bool),
		ammo:  startAmmo,
	}
}

func (p *Pattern) Resolution() schema.Resolution {
	return schema.Resolution{Width: Width, Height: Height}
}

// Position returns the marker's top-left corner.
func (p *Pattern) Position() (int, int) { return p.x, p.y }

func (p *Pattern) Speed() int { return p.speed }

func (p *Pattern) Input(ev sim.InputEvent) {
	if ev.Mouse {
		p.mouse = ev.Buttons
		return
	}
	p.held[ev.Key] = ev.Pressed
	if !ev.Pressed {
		return
	}
	switch {
	case ev.Key == schema.KeyEscape:
		p.menuOpen = !p.menuOpen
		p.menuSel = 0
		p.pushMenu()
	case p.menuOpen && ev.Key == schema.KeyDownArrow:
		p.menuSel = (p.menuSel + 1) % uint8(len(menuItems))
		p.pushMenu()
	case p.menuOpen && ev.Key == schema.KeyUpArrow:
		p.menuSel = (p.menuSel + uint8(len(menuItems)) - 1) % uint8(len(menuItems))
		p.pushMenu()
	case p.menuOpen && ev.Key == schema.KeyEnter:
		p.pending = append(p.pending, schema.MenuMessage{Text: "selected " + menuItems[p.menuSel]})
		p.menuOpen = false
	case ev.Key == schema.KeyTab:
		p.automap = !p.automap
		if p.automap {
			p.pending = append(p.pending, schema.AutomapTitle{Title: "DEMO: test pattern"})
		}
	case ev.Key == schema.KeyFire && !p.menuOpen:
		if p.ammo > 0 {
			p.ammo--
			p.flash = flashTicks
			p.pending = append(p.pending, schema.GameMessage{Text: "bang"})
		} else {
			p.pending = append(p.pending, schema.GameMessage{Text: "out of ammo"})
		}
	}
}

func (p *Pattern) pushMenu() {
	if !p.menuOpen {
		return
	}
	p.pending = append(p.pending, schema.Menu{Type: schema.MenuMain, Items: menuItems, Selected: p.menuSel})
}

// SetVariable accepts "speed", the marker's pixels per tick.
func (p *Pattern) SetVariable(name, value string) bool {
	if name != "speed" {
		return false
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return false
	}
	p.speed = min(n, maxSpeed)
	p.pending = append(p.pending, schema.GameMessage{Text: fmt.Sprintf("speed %d", p.speed)})
	return true
}

func (p *Pattern) Tick(out sim.Outbox) error {
	p.tick++
	if !p.titleSent {
		p.titleSent = true
		if err := out.Send(schema.SetTitle{Title: "simlink demo"}); err != nil {
			return err
		}
	}
	for _, msg := range p.pending {
		if err := out.Send(msg); err != nil {
			return err
		}
	}
	p.pending = p.pending[:0]
	if p.flash > 0 {
		p.flash--
	}
	if p.menuOpen {
		return nil
	}
	step := p.speed
	if p.held[schema.KeyRShift] {
		step *= 2
	}
	if p.held[schema.KeyLeftArrow] {
		p.x -= step
	}
	if p.held[schema.KeyRightArrow] {
		p.x += step
	}
	if p.held[schema.KeyUpArrow] {
		p.y -= step
	}
	if p.held[schema.KeyDownArrow] {
		p.y += step
	}
	p.x = clamp(p.x, 0, Width-markerSize)
	p.y = clamp(p.y, 0, Height-markerSize)
	return nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (p *Pattern) Draw(pixels []byte) schema.DetachedUI {
	barWidth := Width / len(bars)
	for y := 0; y < Height; y++ {
		row := pixels[y*Width*3 : (y+1)*Width*3]
		for x := 0; x < Width; x++ {
			c := bars[min(x/barWidth, len(bars)-1)]
			if p.flash > 0 && (x < 2 || y < 2 || x >= Width-2 || y >= Height-2) {
				c = [3]uint8{255, 255, 255}
			}
			copy(row[x*3:], c[:])
		}
	}
	mc := markerColors[p.mouse&7]
	for y := p.y; y < p.y+markerSize; y++ {
		for x := p.x; x < p.x+markerSize; x++ {
			copy(pixels[(y*Width+x)*3:], mc[:])
		}
	}
	detached := schema.DetachedStatusBar
	if p.menuOpen {
		detached |= schema.DetachedMenu
	}
	if p.automap {
		detached |= schema.DetachedAutomapTitle
	}
	return detached
}

func (p *Pattern) Status() (schema.PlayerStatus, bool) {
	if p.menuOpen {
		return schema.PlayerStatus{}, false
	}
	return schema.PlayerStatus{
		Health:    100,
		ReadyAmmo: p.ammo,
		Ammo:      [schema.AmmoTypes]int16{p.ammo},
		MaxAmmo:   [schema.AmmoTypes]int16{200, 50, 300, 50},
		ArmsBits:  1,
	}, true
}
