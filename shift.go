package tlc5940

import (
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// shifter sends serial data into the chain, most significant bit first.
type shifter interface {
	// shift8 sends whole bytes.
	shift8(b []byte) error
	// shift6 sends the 6 low bits of v, n times.
	shift6(v byte, n int) error
	// pulse sends one clock pulse without caring about the data line.
	pulse() error
}

// bitBang toggles two GPIOs for every bit.
type bitBang struct {
	sclk gpio.PinOut
	sin  gpio.PinOut
}

func (b *bitBang) shift8(p []byte) error {
	for _, v := range p {
		if err := b.bits(v, 0x80); err != nil {
			return err
		}
	}
	return nil
}

func (b *bitBang) shift6(v byte, n int) error {
	for i := 0; i < n; i++ {
		if err := b.bits(v, 0x20); err != nil {
			return err
		}
	}
	return nil
}

func (b *bitBang) bits(v, top byte) error {
	for m := top; m != 0; m >>= 1 {
		if err := b.sin.Out(gpio.Level(v&m != 0)); err != nil {
			return err
		}
		if err := pulse(b.sclk); err != nil {
			return err
		}
	}
	return nil
}

func (b *bitBang) pulse() error {
	return pulse(b.sclk)
}

// spiShifter sends the same bit stream through a SPI port. The clock pin is
// only driven directly for the extra pulse after dot correction.
type spiShifter struct {
	c    conn.Conn
	sclk gpio.PinOut
}

func (s *spiShifter) shift8(p []byte) error {
	return s.c.Tx(p, nil)
}

func (s *spiShifter) shift6(v byte, n int) error {
	return s.c.Tx(pack6(v, n), nil)
}

func (s *spiShifter) pulse() error {
	return pulse(s.sclk)
}

// pack6 packs n copies of the 6 low bits of v back to back, most significant
// bit first. The last byte is padded with zeros when 6*n is not a multiple of 8.
func pack6(v byte, n int) []byte {
	out := make([]byte, (6*n+7)/8)
	v &= 0x3F
	for i := 0; i < n; i++ {
		for bit := 0; bit < 6; bit++ {
			if v&(0x20>>bit) == 0 {
				continue
			}
			pos := 6*i + bit
			out[pos/8] |= 0x80 >> (pos % 8)
		}
	}
	return out
}

// pulse drives p high then low.
func pulse(p gpio.PinOut) error {
	if err := p.Out(gpio.High); err != nil {
		return err
	}
	return p.Out(gpio.Low)
}
