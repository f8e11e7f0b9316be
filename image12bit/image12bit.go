package image12bit

import (
	"image"
	"image/color"
)

// Gray12 represents a 12-bit grayscale color (0-4095 intensity levels).
// Only the lower 12 bits of Y are used.
type Gray12 struct {
	Y uint16
}

// RGBA converts the Gray12 color to standard RGBA.
func (c Gray12) RGBA() (r, g, b, a uint32) {
	// Replicate the top nibble into the low bits so 0xFFF maps to 0xFFFF.
	y := uint32(c.Y & 0x0FFF)
	y = y<<4 | y>>8
	return y, y, y, 0xFFFF
}

// toGray12 converts any color.Color to Gray12.
func toGray12(c color.Color) color.Color {
	if g, ok := c.(Gray12); ok {
		return g
	}
	r, g, b, _ := c.RGBA()
	y := (299*r + 587*g + 114*b + 500) / 1000
	return Gray12{Y: uint16(y >> 4)}
}

// Gray12Model converts colors to Gray12.
var Gray12Model = color.ModelFunc(toGray12)

// Packed is a 12-bit grayscale image where pixels are stored back to back
// without padding.
type Packed struct {
	Pix    []byte          // Pixel data (3 bytes per 2 pixels)
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
}

// NewPacked creates a new Packed image with the specified bounds.
// The width must be even so every row ends on a byte boundary.
func NewPacked(r image.Rectangle) *Packed {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Packed{Rect: r}
	}
	if w%2 != 0 {
		panic("image12bit: width must be even")
	}
	stride := w * 3 / 2
	return &Packed{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   r,
	}
}

// ColorModel returns the color model of the image.
func (p *Packed) ColorModel() color.Model {
	return Gray12Model
}

// Bounds returns the image bounds.
func (p *Packed) Bounds() image.Rectangle {
	return p.Rect
}

// At implements image.Image.
func (p *Packed) At(x, y int) color.Color {
	return p.Gray12At(x, y)
}

// Gray12At returns the Gray12 color of the pixel at (x, y).
func (p *Packed) Gray12At(x, y int) Gray12 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return Gray12{}
	}
	o, odd := p.pixOffset(x, y)
	if !odd {
		return Gray12{Y: uint16(p.Pix[o])<<4 | uint16(p.Pix[o+1]>>4)}
	}
	return Gray12{Y: uint16(p.Pix[o]&0x0F)<<8 | uint16(p.Pix[o+1])}
}

// Set sets the color of the pixel at (x, y).
func (p *Packed) Set(x, y int, c color.Color) {
	p.SetGray12(x, y, Gray12Model.Convert(c).(Gray12))
}

// SetGray12 sets the Gray12 color of the pixel at (x, y). The four bits the
// pixel shares with its neighbour are left untouched.
func (p *Packed) SetGray12(x, y int, c Gray12) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	v := c.Y & 0x0FFF
	o, odd := p.pixOffset(x, y)
	if !odd {
		p.Pix[o] = byte(v >> 4)
		p.Pix[o+1] = p.Pix[o+1]&0x0F | byte(v<<4)
		return
	}
	p.Pix[o] = p.Pix[o]&0xF0 | byte(v>>8)
	p.Pix[o+1] = byte(v)
}

// Clear sets every pixel to zero.
func (p *Packed) Clear() {
	for i := range p.Pix {
		p.Pix[i] = 0
	}
}

// pixOffset returns the offset of the first byte holding the pixel at (x, y)
// and whether the pixel starts on the low nibble of that byte.
func (p *Packed) pixOffset(x, y int) (offset int, odd bool) {
	bit := (x - p.Rect.Min.X) * 12
	offset = (y-p.Rect.Min.Y)*p.Stride + bit/8
	odd = bit%8 != 0
	return
}
