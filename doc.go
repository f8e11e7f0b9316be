// Package tlc5940 drives a chain of TLC5940 LED drivers via GPIO or SPI.
//
// The TLC5940 is a 16-channel constant-current sink with 12-bit grayscale PWM
// and 6-bit dot correction per channel. Chips are daisy-chained: the serial
// output of one feeds the serial input of the next, so a chain of N chips is
// loaded as a single 192·N bit frame.
//
// # Hardware Connection
//
// Six control lines are needed:
//
//	Chip Pin → System Pin
//	SCLK     → GPIO (or SPI Clock)
//	SIN      → GPIO (or SPI Data, MOSI)
//	XLAT     → GPIO
//	BLANK    → GPIO (pulled up, so outputs stay off at power up)
//	GSCLK    → GPIO with hardware PWM
//	VPRG     → GPIO
//	IREF     → resistor to GND, sets the maximum current
//
// # Basic Usage
//
//	package main
//
//	import (
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/devices/v3/tlc5940"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//
//		dev, _ := tlc5940.New(&tlc5940.Pins{
//			SCLK:  gpioreg.ByName("GPIO11"),
//			SIN:   gpioreg.ByName("GPIO10"),
//			XLAT:  gpioreg.ByName("GPIO17"),
//			BLANK: gpioreg.ByName("GPIO27"),
//			GSCLK: gpioreg.ByName("GPIO18"),
//			VPRG:  gpioreg.ByName("GPIO22"),
//		}, &tlc5940.Opts{Drivers: 2})
//		dev.Init()
//		defer dev.Halt()
//
//		// Full brightness on the first output of each chip.
//		dev.SetLED(0, 4095)
//		dev.SetLED(16, 4095)
//		dev.Display()
//	}
//
// # Frames and Latching
//
// SetLED and Clear only change the frame held in memory. Display shifts the
// whole frame into the chain; a frame timer running once per PWM cycle (4096
// grayscale clock periods) then blanks the outputs, latches the new data and
// restarts the cycle. The outputs therefore always show either the previous
// frame or the new one, never a mix.
//
// Display waits for the previous frame to be latched before shifting the next
// one, so it blocks for up to one PWM cycle. If the frame timer is not
// running, Display and SetGlobalDC block forever.
//
// Dev is not safe for concurrent use: SetLED, Display, SetGlobalDC and friends
// must be called from a single goroutine.
//
// # Resolution
//
// Opts.Resolution selects how many bits callers use per intensity. A lower
// resolution is shifted into the high bits of the 12-bit word, so 8-bit
// intensities 0 to 255 map onto the whole PWM range.
//
// # Dot Correction
//
// SetGlobalDC loads the same 6-bit value into every channel, scaling the
// maximum current from 0/63 to 63/63 of the IREF setting. Init loads 63.
//
// # Compatibility with periph.io
//
// Dev implements the display.Drawer interface from periph.io; the chain is
// exposed as a single row of 16·N pixels in the image12bit.Gray12 color model.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/tlc5940.pdf
package tlc5940
