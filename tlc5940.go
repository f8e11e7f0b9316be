// Package tlc5940 drives a chain of TLC5940 16-channel PWM LED drivers.
//
// The chips generate their own 4096-step PWM from a grayscale clock. This
// driver shifts 12-bit intensities into the chain and latches them at the
// boundary between two PWM cycles, so the outputs only ever show whole frames.
//
// See the examples for how to use this package.
package tlc5940

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"periph.io/x/devices/v3/tlc5940/image12bit"
)

// MaxDotCorrection is the largest dot correction value, full current.
const MaxDotCorrection = 63

// Steps is the number of grayscale clock periods in one PWM cycle.
const Steps = 4096

var (
	// ErrChannel is returned for a channel outside of the chain.
	ErrChannel = errors.New("tlc5940: channel out of range")
	// ErrIntensity is returned for an intensity that does not fit the
	// configured resolution.
	ErrIntensity = errors.New("tlc5940: intensity out of range")
	// ErrDotCorrection is returned for a dot correction value above 63.
	ErrDotCorrection = errors.New("tlc5940: dot correction out of range")
	// ErrHalted is returned once Halt was called.
	ErrHalted = errors.New("tlc5940: halted")
	// ErrNotInitialized is returned when Init was not called yet.
	ErrNotInitialized = errors.New("tlc5940: not initialized")
)

// Pins are the control lines of the chain.
type Pins struct {
	SCLK  gpio.PinOut // Serial clock
	SIN   gpio.PinOut // Serial data, unused with NewSPI
	XLAT  gpio.PinOut // Latch
	BLANK gpio.PinOut // Blank, high turns every output off
	GSCLK gpio.PinOut // Grayscale reference clock, must support PWM
	VPRG  gpio.PinOut // Program mode, high selects dot correction
}

// Opts is the configuration for a TLC5940 chain.
type Opts struct {
	Drivers    int // Number of chips in series (default: 1)
	Resolution int // Bits per intensity, 1 to 12 (default: 12)

	// Grayscale clock frequency (default: 4MHz). One PWM cycle, and thus one
	// latch opportunity, lasts 4096 periods of this clock.
	GSCLK physic.Frequency

	// Timer calls the frame handler once per PWM cycle. When nil, a
	// time.Ticker based timer is used.
	Timer FrameTimer

	// Logger receives debug and error messages. Nil disables logging.
	Logger *zerolog.Logger
}

// Dev is a handle to a TLC5940 chain.
type Dev struct {
	pins  Pins
	s     shifter
	timer FrameTimer
	log   zerolog.Logger

	drivers int
	bits    int
	shift   uint
	gsclk   physic.Frequency
	period  time.Duration
	frame   *image12bit.Packed

	mu sync.Mutex // serialises the frame cycle with Halt

	pending   atomic.Bool // a full frame is in the shift register, waiting for XLAT
	needPulse atomic.Bool // dot correction was loaded, the chip wants one more SCLK
	state     atomic.Uint32
	started   atomic.Bool
	halted    atomic.Bool
}

// New returns a handle to a chain driven by bit-banging the pins.
//
// No pin is touched until Init is called.
func New(pins *Pins, opts *Opts) (*Dev, error) {
	if pins == nil || pins.SCLK == nil || pins.SIN == nil {
		return nil, errors.New("tlc5940: SCLK and SIN pins are required")
	}
	d, err := newDev(pins, opts)
	if err != nil {
		return nil, err
	}
	d.s = &bitBang{sclk: pins.SCLK, sin: pins.SIN}
	return d, nil
}

// NewSPI returns a handle to a chain whose serial data is sent over a SPI
// port.
//
// The SPI port is configured for 30MHz, Mode0 (CPOL=0, CPHA=0), 8-bit
// transfers. SIN is ignored. SCLK is still needed to send the extra clock
// pulse the chips expect after dot correction; when nil, the port's own clock
// pin is used if the port exposes it.
func NewSPI(p spi.Port, pins *Pins, opts *Opts) (*Dev, error) {
	if pins == nil {
		return nil, errors.New("tlc5940: pins are required")
	}
	sclk := pins.SCLK
	if sclk == nil {
		if sp, ok := p.(spi.Pins); ok && sp.CLK() != gpio.INVALID {
			sclk = sp.CLK()
		}
	}
	if sclk == nil {
		return nil, errors.New("tlc5940: SCLK pin is required")
	}
	d, err := newDev(pins, opts)
	if err != nil {
		return nil, err
	}
	// The TLC5940 shift register is rated for 30MHz.
	c, err := p.Connect(30*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("tlc5940: %w", err)
	}
	d.pins.SCLK = sclk
	d.s = &spiShifter{c: c, sclk: sclk}
	return d, nil
}

func newDev(pins *Pins, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	if pins.XLAT == nil || pins.BLANK == nil || pins.GSCLK == nil || pins.VPRG == nil {
		return nil, errors.New("tlc5940: XLAT, BLANK, GSCLK and VPRG pins are required")
	}
	drivers := opts.Drivers
	if drivers == 0 {
		drivers = 1
	}
	if drivers < 0 {
		return nil, errors.New("tlc5940: drivers must be positive")
	}
	bits := opts.Resolution
	if bits == 0 {
		bits = 12
	}
	if bits < 1 || bits > 12 {
		return nil, errors.New("tlc5940: resolution must be between 1 and 12 bits")
	}
	gsclk := opts.GSCLK
	if gsclk == 0 {
		gsclk = 4 * physic.MegaHertz
	}
	if gsclk < 0 || gsclk > 30*physic.MegaHertz {
		return nil, errors.New("tlc5940: grayscale clock must be between 0 and 30MHz")
	}
	timer := opts.Timer
	if timer == nil {
		timer = &tickerTimer{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("dev", "tlc5940").Logger()
	}
	return &Dev{
		pins:    *pins,
		timer:   timer,
		log:     log,
		drivers: drivers,
		bits:    bits,
		shift:   uint(12 - bits),
		gsclk:   gsclk,
		period:  Steps * gsclk.Period(),
		frame:   image12bit.NewPacked(image.Rect(0, 0, drivers*16, 1)),
	}, nil
}

// Init resets the control lines, loads full dot correction, starts the frame
// timer and displays the empty frame.
//
// It must be called exactly once, before any other operation.
func (d *Dev) Init() error {
	if d.started.Load() {
		return errors.New("tlc5940: already initialized")
	}
	levels := []struct {
		p gpio.PinOut
		l gpio.Level
	}{
		{d.pins.BLANK, gpio.High}, // outputs stay off until the first cycle
		{d.pins.XLAT, gpio.Low},
		{d.pins.SCLK, gpio.Low},
		{d.pins.SIN, gpio.Low},
		{d.pins.GSCLK, gpio.Low},
		{d.pins.VPRG, gpio.Low},
	}
	for _, pl := range levels {
		if pl.p == nil {
			continue
		}
		if err := pl.p.Out(pl.l); err != nil {
			return fmt.Errorf("tlc5940: failed to set %s: %w", pl.p, err)
		}
	}
	d.state.Store(uint32(Blanked))

	if err := d.setGlobalDC(MaxDotCorrection); err != nil {
		return err
	}
	if err := d.pins.GSCLK.PWM(gpio.DutyHalf, d.gsclk); err != nil {
		return fmt.Errorf("tlc5940: failed to start grayscale clock: %w", err)
	}
	if err := d.timer.Start(d.period, d.onFrame); err != nil {
		if err2 := d.pins.GSCLK.Out(gpio.Low); err2 != nil {
			d.log.Error().Err(err2).Msg("failed to stop grayscale clock")
		}
		return fmt.Errorf("tlc5940: failed to start frame timer: %w", err)
	}
	d.started.Store(true)
	d.log.Debug().
		Int("drivers", d.drivers).
		Int("bits", d.bits).
		Stringer("gsclk", d.gsclk).
		Dur("period", d.period).
		Msg("initialized")
	return d.display()
}

// Channels returns the number of outputs of the chain.
func (d *Dev) Channels() int {
	return d.drivers * 16
}

// Clear sets every channel to zero. It takes effect at the next Display.
func (d *Dev) Clear() {
	d.frame.Clear()
}

// SetLED sets the intensity of a channel. The intensity must fit in the
// configured resolution. It takes effect at the next Display.
func (d *Dev) SetLED(channel int, intensity uint16) error {
	if channel < 0 || channel >= d.Channels() {
		return ErrChannel
	}
	if intensity >= 1<<d.bits {
		return ErrIntensity
	}
	d.frame.SetGray12(channel, 0, image12bit.Gray12{Y: intensity << d.shift})
	return nil
}

// GetLED returns the 12-bit value stored for a channel, that is the intensity
// passed to SetLED shifted into the high bits. It returns 0 for a channel
// outside of the chain.
func (d *Dev) GetLED(channel int) uint16 {
	return d.frame.Gray12At(channel, 0).Y
}

// Display shifts the current frame into the chain. The frame becomes visible
// at the next PWM cycle boundary.
//
// Display waits until the previously displayed frame was latched, which takes
// at most one PWM cycle. It never returns if the frame timer does not run.
func (d *Dev) Display() error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.display()
}

func (d *Dev) display() error {
	if err := d.wait(); err != nil {
		return err
	}
	if err := d.pins.VPRG.Out(gpio.Low); err != nil {
		return fmt.Errorf("tlc5940: failed to select grayscale mode: %w", err)
	}
	if err := d.s.shift8(d.frame.Pix); err != nil {
		return fmt.Errorf("tlc5940: failed to shift frame: %w", err)
	}
	d.pending.Store(true)
	return nil
}

// SetGlobalDC loads the same dot correction value, 0 to 63, into every
// channel. Dot correction scales the maximum current of a channel.
//
// Like Display, it never returns if the frame timer does not run.
func (d *Dev) SetGlobalDC(value uint8) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.setGlobalDC(value)
}

func (d *Dev) setGlobalDC(value uint8) error {
	if value > MaxDotCorrection {
		return ErrDotCorrection
	}
	if err := d.wait(); err != nil {
		return err
	}
	if err := d.pins.VPRG.Out(gpio.High); err != nil {
		return fmt.Errorf("tlc5940: failed to select dot correction mode: %w", err)
	}
	if err := d.s.shift6(value, d.Channels()); err != nil {
		return fmt.Errorf("tlc5940: failed to shift dot correction: %w", err)
	}
	if err := pulse(d.pins.XLAT); err != nil {
		return fmt.Errorf("tlc5940: failed to latch dot correction: %w", err)
	}
	if err := d.pins.VPRG.Out(gpio.Low); err != nil {
		return fmt.Errorf("tlc5940: failed to select grayscale mode: %w", err)
	}
	d.needPulse.Store(true)
	d.log.Debug().Uint8("dc", value).Msg("dot correction loaded")
	return nil
}

// ColorModel returns the color model of the chain.
func (d *Dev) ColorModel() color.Model {
	return image12bit.Gray12Model
}

// Bounds returns the chain as a single row of pixels, one per channel.
func (d *Dev) Bounds() image.Rectangle {
	return d.frame.Rect
}

// Draw converts the pixels of src to channel intensities and displays them.
// Pixel (x, 0) is channel x.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted.Load() {
		return ErrHalted
	}
	r := dst.Intersect(d.frame.Rect)
	if r.Empty() {
		return nil
	}
	mask := uint16(1)<<d.shift - 1
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := image12bit.Gray12Model.Convert(src.At(sp.X+x-dst.Min.X, sp.Y+y-dst.Min.Y)).(image12bit.Gray12)
			d.frame.SetGray12(x, y, image12bit.Gray12{Y: c.Y &^ mask})
		}
	}
	return d.Display()
}

// Write replaces the frame with raw packed data and displays it.
// The data must be exactly 24 bytes per chip.
func (d *Dev) Write(pixels []byte) (int, error) {
	if d.halted.Load() {
		return 0, ErrHalted
	}
	if len(pixels) != len(d.frame.Pix) {
		return 0, errors.New("tlc5940: invalid buffer size")
	}
	copy(d.frame.Pix, pixels)
	if err := d.Display(); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// State returns the phase of the PWM cycle.
func (d *Dev) State() State {
	return State(d.state.Load())
}

// Halt stops the frame timer and turns every output off.
//
// A Display or SetGlobalDC waiting for a latch returns ErrHalted. A frame
// cycle already running is allowed to finish first.
func (d *Dev) Halt() error {
	d.halted.Store(true)
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.timer.Stop()
	if err2 := d.pins.BLANK.Out(gpio.High); err == nil {
		err = err2
	}
	if err2 := d.pins.GSCLK.Out(gpio.Low); err == nil {
		err = err2
	}
	d.state.Store(uint32(Blanked))
	d.log.Debug().Err(err).Msg("halted")
	return err
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("tlc5940.Dev{%d chips, %d bits}", d.drivers, d.bits)
}

func (d *Dev) ready() error {
	if d.halted.Load() {
		return ErrHalted
	}
	if !d.started.Load() {
		return ErrNotInitialized
	}
	return nil
}

// wait spins until no frame is waiting for a latch.
func (d *Dev) wait() error {
	for d.pending.Load() {
		if d.halted.Load() {
			return ErrHalted
		}
		runtime.Gosched()
	}
	return nil
}
