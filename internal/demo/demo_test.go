package demo

import (
	"testing"

	"pkt.systems/simlink/schema"
	"pkt.systems/simlink/sim"
)

type outbox struct {
	msgs []schema.SimMessage
}

func (o *outbox) Send(msg schema.SimMessage) error {
	o.msgs = append(o.msgs, msg)
	return nil
}

func pixelAt(px []byte, x, y int) [3]uint8 {
	i := (y*Width + x) * 3
	return [3]uint8{px[i], px[i+1], px[i+2]}
}

func TestMarkerMovesWhileHeld(t *testing.T) {
	p := New()
	out := &outbox{}
	x0, y0 := p.Position()
	p.Input(sim.InputEvent{Key: schema.KeyRightArrow, Pressed: true})
	_ = p.Tick(out)
	_ = p.Tick(out)
	p.Input(sim.InputEvent{Key: schema.KeyRightArrow, Pressed: false})
	_ = p.Tick(out)
	x, y := p.Position()
	if x != x0+2*p.Speed() || y != y0 {
		t.Fatalf("expected marker at %d,%d, got %d,%d", x0+2*p.Speed(), y0, x, y)
	}
}

func TestMarkerClampedToScreen(t *testing.T) {
	p := New()
	_ = p.SetVariable("speed", "100")
	p.Input(sim.InputEvent{Key: schema.KeyUpArrow, Pressed: true})
	p.Input(sim.InputEvent{Key: schema.KeyLeftArrow, Pressed: true})
	for i := 0; i < 100; i++ {
		_ = p.Tick(&outbox{})
	}
	if x, y := p.Position(); x != 0 || y != 0 {
		t.Fatalf("expected marker clamped at origin, got %d,%d", x, y)
	}
}

func TestSpeedVariable(t *testing.T) {
	p := New()
	if !p.SetVariable("speed", "5") || p.Speed() != 5 {
		t.Fatalf("expected speed 5")
	}
	if p.SetVariable("speed", "fast") || p.SetVariable("gamma", "1") {
		t.Fatalf("expected invalid variables rejected")
	}
	if !p.SetVariable("speed", "99") || p.Speed() != maxSpeed {
		t.Fatalf("expected speed capped at %d, got %d", maxSpeed, p.Speed())
	}
}

func TestDrawPattern(t *testing.T) {
	p := New()
	px := make([]byte, Width*Height*3)
	detached := p.Draw(px)
	if detached != schema.DetachedStatusBar {
		t.Fatalf("unexpected detached bits %v", detached)
	}
	if got := pixelAt(px, 0, 0); got != bars[0] {
		t.Fatalf("expected first bar colour, got %v", got)
	}
	if got := pixelAt(px, Width-1, 0); got != bars[len(bars)-1] {
		t.Fatalf("expected last bar colour, got %v", got)
	}
	x, y := p.Position()
	if got := pixelAt(px, x, y); got != markerColors[0] {
		t.Fatalf("expected marker colour, got %v", got)
	}
	p.Input(sim.InputEvent{Mouse: true, Buttons: schema.MouseLeft})
	p.Draw(px)
	if got := pixelAt(px, x, y); got != markerColors[schema.MouseLeft] {
		t.Fatalf("expected mouse recolour, got %v", got)
	}
}

func TestFireFlashesAndReports(t *testing.T) {
	p := New()
	out := &outbox{}
	p.Input(sim.InputEvent{Key: schema.KeyFire, Pressed: true})
	_ = p.Tick(out)
	px := make([]byte, Width*Height*3)
	p.Draw(px)
	if got := pixelAt(px, 0, 0); got != [3]uint8{255, 255, 255} {
		t.Fatalf("expected flash border, got %v", got)
	}
	st, ok := p.Status()
	if !ok || st.ReadyAmmo != startAmmo-1 {
		t.Fatalf("expected ammo decremented, got %+v", st)
	}
	var title, bang bool
	for _, m := range out.msgs {
		switch m := m.(type) {
		case schema.SetTitle:
			title = true
		case schema.GameMessage:
			bang = m.Text == "bang"
		}
	}
	if !title || !bang {
		t.Fatalf("expected title and game message, got %+v", out.msgs)
	}
}

func TestMenuToggle(t *testing.T) {
	p := New()
	out := &outbox{}
	p.Input(sim.InputEvent{Key: schema.KeyEscape, Pressed: true})
	p.Input(sim.InputEvent{Key: schema.KeyDownArrow, Pressed: true})
	_ = p.Tick(out)
	if _, ok := p.Status(); ok {
		t.Fatalf("expected no status while menu open")
	}
	last, ok := out.msgs[len(out.msgs)-1].(schema.Menu)
	if !ok || last.Selected != 1 || len(last.Items) != len(menuItems) {
		t.Fatalf("unexpected menu message %+v", out.msgs)
	}
	if !p.Draw(make([]byte, Width*Height*3)).Has(schema.DetachedMenu) {
		t.Fatalf("expected menu detached bit")
	}
}
