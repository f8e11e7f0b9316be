// Package tlc5940test is meant to be used to test drivers of TLC5940 chains
// without hardware.
//
// Chain decodes the pin activity of the six control lines the way a chain of
// chips would, so tests can inspect what actually reached the outputs.
package tlc5940test

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// Line identifies one of the control lines of a chain.
type Line int

// Control lines, in the order they are usually listed on a TLC5940 breakout.
const (
	SCLK Line = iota
	SIN
	XLAT
	BLANK
	GSCLK
	VPRG
	numLines
)

var lineNames = [numLines]string{"SCLK", "SIN", "XLAT", "BLANK", "GSCLK", "VPRG"}

func (l Line) String() string {
	if l < 0 || l >= numLines {
		return fmt.Sprintf("Line(%d)", int(l))
	}
	return lineNames[l]
}

// Pin is a gpio.PinOut connected to a simulated chain.
type Pin struct {
	gpiotest.Pin
	c    *Chain
	line Line
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.c.edge(p.line, l)
	return nil
}

// PWM implements gpio.PinOut.
//
// Only meaningful on GSCLK, where a non zero duty starts the grayscale clock.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if err := p.Pin.PWM(duty, f); err != nil {
		return err
	}
	p.c.clock(p.line, duty != 0 && f != 0)
	return nil
}

// Chain simulates drivers TLC5940 chips connected in series.
//
// Channel k of the chain is the k-th 12-bit word shifted in, so channel 0 is
// the first word sent.
type Chain struct {
	mu      sync.Mutex
	drivers int
	pins    [numLines]*Pin
	levels  [numLines]gpio.Level

	bits    []bool // shift register, oldest bit first
	clocks  int
	gs      []uint16
	dc      []uint8
	staged  []uint16
	pulse   bool // a grayscale latch is waiting for the extra SCLK pulse
	afterDC bool // the next grayscale latch needs the extra SCLK pulse

	latches   int
	unblanked int
	running   bool
	history   [][]uint16
}

// NewChain returns a chain of drivers chips with every register cleared.
func NewChain(drivers int) *Chain {
	c := &Chain{
		drivers: drivers,
		bits:    make([]bool, drivers*192),
		gs:      make([]uint16, drivers*16),
		dc:      make([]uint8, drivers*16),
	}
	for l := Line(0); l < numLines; l++ {
		c.pins[l] = &Pin{
			Pin:  gpiotest.Pin{N: l.String(), Num: int(l)},
			c:    c,
			line: l,
		}
	}
	return c
}

// Pin returns the pin driving line l.
func (c *Chain) Pin(l Line) *Pin {
	return c.pins[l]
}

// Channels returns the number of outputs of the chain.
func (c *Chain) Channels() int {
	return c.drivers * 16
}

// Grayscale returns a copy of the latched grayscale values.
func (c *Chain) Grayscale() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint16(nil), c.gs...)
}

// DotCorrection returns a copy of the latched dot correction values.
func (c *Chain) DotCorrection() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.dc...)
}

// History returns every grayscale frame committed to the outputs, oldest
// first.
func (c *Chain) History() [][]uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]uint16, len(c.history))
	copy(out, c.history)
	return out
}

// Bits returns a copy of the shift register, oldest bit first.
func (c *Chain) Bits() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.bits...)
}

// Clocks returns the number of SCLK rising edges seen.
func (c *Chain) Clocks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clocks
}

// Latches returns the number of XLAT rising edges seen.
func (c *Chain) Latches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latches
}

// UnblankedLatches returns the number of XLAT rising edges seen while BLANK
// was low, which would glitch real outputs.
func (c *Chain) UnblankedLatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unblanked
}

// PendingPulse reports whether a grayscale latch is still waiting for the
// extra SCLK pulse required after dot correction.
func (c *Chain) PendingPulse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulse
}

// Running reports whether the grayscale clock is running.
func (c *Chain) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Level returns the last level driven on line l.
func (c *Chain) Level(l Line) gpio.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[l]
}

func (c *Chain) edge(l Line, lv gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.levels[l]
	c.levels[l] = lv
	if l == GSCLK {
		c.running = false
	}
	if prev || !lv {
		return
	}
	switch l {
	case SCLK:
		c.clocks++
		c.bits = append(c.bits[1:], bool(c.levels[SIN]))
		if c.pulse {
			c.commit(c.staged)
			c.staged = nil
			c.pulse = false
		}
	case XLAT:
		c.latches++
		if !c.levels[BLANK] {
			c.unblanked++
		}
		if c.levels[VPRG] {
			c.latchDC()
			return
		}
		gs := c.decodeGS()
		if c.afterDC {
			c.afterDC = false
			c.staged = gs
			c.pulse = true
			return
		}
		c.commit(gs)
	}
}

func (c *Chain) clock(l Line, on bool) {
	if l != GSCLK {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = on
}

func (c *Chain) commit(gs []uint16) {
	c.gs = gs
	c.history = append(c.history, append([]uint16(nil), gs...))
}

// decodeGS reads the full register as 12-bit words.
func (c *Chain) decodeGS() []uint16 {
	out := make([]uint16, c.drivers*16)
	for i := range out {
		out[i] = uint16(word(c.bits[i*12 : i*12+12]))
	}
	return out
}

// latchDC reads the most recent 96 bits per chip as 6-bit words.
func (c *Chain) latchDC() {
	bits := c.bits[len(c.bits)-c.drivers*96:]
	for i := range c.dc {
		c.dc[i] = uint8(word(bits[i*6 : i*6+6]))
	}
	c.afterDC = true
}

func word(bits []bool) uint32 {
	var v uint32
	for _, b := range bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v
}

// Timer is a frame timer fired by hand.
//
// It satisfies the frame timer interface of the tlc5940 package.
type Timer struct {
	mu      sync.Mutex
	fn      func()
	period  time.Duration
	resets  int
	running bool
}

// Start implements the frame timer interface.
func (t *Timer) Start(period time.Duration, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("tlc5940test: timer already started")
	}
	t.fn = fn
	t.period = period
	t.running = true
	return nil
}

// Reset implements the frame timer interface.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
}

// Stop implements the frame timer interface.
func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	return nil
}

// Fire runs the callback once, synchronously. It returns false if the timer
// is not running.
func (t *Timer) Fire() bool {
	t.mu.Lock()
	fn, ok := t.fn, t.running
	t.mu.Unlock()
	if !ok {
		return false
	}
	fn()
	return true
}

// Running reports whether Start was called without a following Stop.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Period returns the period passed to Start.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Resets returns the number of Reset calls.
func (t *Timer) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}
