package preprocess

import (
	"fmt"
	"image"
	"image/draw"
)

// PixelBuffer is a row-major RGBA pixel buffer.
// len(Pix) is always Width*Height*4.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed buffer of the given dimensions
func NewPixelBuffer(width, height int) *PixelBuffer {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("preprocess: negative buffer dimensions %dx%d", width, height))
	}
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// FromImage copies any image.Image into a new buffer anchored at (0,0)
func FromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	buf := NewPixelBuffer(b.Dx(), b.Dy())

	// NRGBA keeps alpha un-premultiplied, which is what the channel math below expects
	dst := &image.NRGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * 4,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return buf
}

// Image returns an image.NRGBA view sharing the buffer's pixels
func (b *PixelBuffer) Image() *image.NRGBA {
	b.mustBeValid()
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Clone returns a deep copy
func (b *PixelBuffer) Clone() *PixelBuffer {
	b.mustBeValid()
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// PixelCount returns Width*Height
func (b *PixelBuffer) PixelCount() int {
	return b.Width * b.Height
}

// mustBeValid panics when the buffer length does not match its dimensions.
// Stages never produce such a buffer, so hitting this is a caller bug.
func (b *PixelBuffer) mustBeValid() {
	if b == nil {
		panic("preprocess: nil pixel buffer")
	}
	if b.Width < 0 || b.Height < 0 || len(b.Pix) != b.Width*b.Height*4 {
		panic(fmt.Sprintf("preprocess: malformed pixel buffer %dx%d with %d bytes", b.Width, b.Height, len(b.Pix)))
	}
}
