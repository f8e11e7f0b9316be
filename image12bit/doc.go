// Package image12bit provides a 12-bit grayscale image format matching the
// TLC5940 grayscale shift register.
//
// The TLC5940 takes 12 bits per channel (4096 intensity levels), sent most
// significant bit first with no padding between channels. Pixels are packed
// big-endian, three bytes per pair of pixels. An even pixel occupies a full
// byte plus the high nibble of the next byte; an odd pixel occupies the low
// nibble of its first byte plus the full next byte.
//
// Memory layout example for a 2-pixel row:
//
//	Pixels: 0     1
//	Values: 0xABC 0x123
//	Bytes:  0xAB 0xC1 0x23
//
// This package provides:
//
// - Gray12: A color type representing 12-bit grayscale (0-4095)
// - Gray12Model: A color model for converting standard Go colors to Gray12
// - Packed: A draw.Image storing pixels in shift register order
package image12bit
