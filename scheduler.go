package tlc5940

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// State is the phase of the PWM cycle.
type State uint32

const (
	// Blanked means every output is forced off and the grayscale counter is
	// stopped. New data is latched in this phase.
	Blanked State = iota
	// Active means the chips are running their PWM cycle.
	Active
)

func (s State) String() string {
	switch s {
	case Blanked:
		return "Blanked"
	case Active:
		return "Active"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// FrameTimer calls a function once per PWM cycle. It plays the role of the
// timer overflow interrupt found on microcontrollers.
//
// fn must never run concurrently with itself. Reset and Stop may be called
// from fn.
type FrameTimer interface {
	// Start calls fn every period until Stop is called.
	Start(period time.Duration, fn func()) error
	// Reset restarts the current period from zero.
	Reset()
	// Stop stops calling fn.
	Stop() error
}

// onFrame runs at the end of every PWM cycle.
func (d *Dev) onFrame() {
	if err := d.cycle(); err != nil {
		d.log.Error().Err(err).Stringer("state", d.State()).Msg("frame cycle failed")
	}
}

// cycle blanks the outputs, latches the shifted frame if there is one and
// starts the next PWM cycle. It does nothing once Halt was called.
func (d *Dev) cycle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted.Load() {
		return nil
	}
	d.state.Store(uint32(Blanked))
	if err := d.pins.BLANK.Out(gpio.High); err != nil {
		return fmt.Errorf("tlc5940: failed to blank: %w", err)
	}
	if err := d.pins.GSCLK.Out(gpio.Low); err != nil {
		return fmt.Errorf("tlc5940: failed to stop grayscale clock: %w", err)
	}

	if d.pending.Load() {
		if err := pulse(d.pins.XLAT); err != nil {
			return fmt.Errorf("tlc5940: failed to latch: %w", err)
		}
		// Datasheet p.18: the first grayscale cycle after dot correction
		// needs one more SCLK pulse after XLAT.
		if d.needPulse.Load() {
			if err := d.s.pulse(); err != nil {
				return fmt.Errorf("tlc5940: failed to send extra clock pulse: %w", err)
			}
			d.needPulse.Store(false)
		}
		// Cleared last: Display may start shifting as soon as it sees it.
		d.pending.Store(false)
	}

	if err := d.pins.BLANK.Out(gpio.Low); err != nil {
		return fmt.Errorf("tlc5940: failed to unblank: %w", err)
	}
	if err := d.pins.GSCLK.PWM(gpio.DutyHalf, d.gsclk); err != nil {
		return fmt.Errorf("tlc5940: failed to start grayscale clock: %w", err)
	}
	d.timer.Reset()
	d.state.Store(uint32(Active))
	return nil
}

// tickerTimer is the default FrameTimer, driven by a time.Ticker.
type tickerTimer struct {
	mu     sync.Mutex
	t      *time.Ticker
	period time.Duration
	done   chan struct{}
}

func (t *tickerTimer) Start(period time.Duration, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		return errors.New("tlc5940: timer already started")
	}
	if period <= 0 {
		return errors.New("tlc5940: invalid timer period")
	}
	t.t = time.NewTicker(period)
	t.period = period
	t.done = make(chan struct{})
	go func(c <-chan time.Time, done <-chan struct{}) {
		for {
			select {
			case <-c:
				fn()
			case <-done:
				return
			}
		}
	}(t.t.C, t.done)
	return nil
}

func (t *tickerTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Reset(t.period)
	}
}

func (t *tickerTimer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t == nil {
		return nil
	}
	t.t.Stop()
	close(t.done)
	t.t = nil
	return nil
}
