package coverage

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// bytesPerPixel is the number of samples stored for one RGBA pixel.
const bytesPerPixel = 4

// PixelBuffer is a rendered page: Width*Height RGBA samples, 8 bits per channel,
// stored row by row with no padding. A buffer is never modified after it is built.
// Every constructor flattens translucent pixels onto white paper, so the analyzer
// only ever sees opaque samples.
type PixelBuffer struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewPixelBuffer wraps raw RGBA samples, checking that they match the dimensions.
func NewPixelBuffer(width, height int, pix []uint8) (*PixelBuffer, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidBuffer, width, height)
	}

	expected := width * height * bytesPerPixel
	if len(pix) != expected {
		return nil, fmt.Errorf(
			"%w: %dx%d needs %d samples, got %d",
			ErrInvalidBuffer,
			width,
			height,
			expected,
			len(pix),
		)
	}

	return &PixelBuffer{Pix: flattenOnWhite(pix), Width: width, Height: height}, nil
}

// flattenOnWhite composites straight-alpha samples over white. pix is returned as is
// when every pixel is already opaque; otherwise a flattened copy is returned.
func flattenOnWhite(pix []uint8) []uint8 {
	opaque := true

	for i := 3; i < len(pix); i += bytesPerPixel {
		if pix[i] != 0xff {
			opaque = false

			break
		}
	}

	if opaque {
		return pix
	}

	flat := make([]uint8, len(pix))
	for i := 0; i < len(pix); i += bytesPerPixel {
		alpha := uint32(pix[i+3])
		for channel := range 3 {
			value := uint32(pix[i+channel])
			flat[i+channel] = uint8((value*alpha + 0xff*(0xff-alpha) + 0x7f) / 0xff)
		}

		flat[i+3] = 0xff
	}

	return flat
}

// FromImage converts a decoded page image into an 8-bit RGBA buffer. The image is
// composited over white paper, so transparent regions count as unprinted.
func FromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)

	return fromRGBA(dst)
}

// MonochromeFromImage renders img a second time through an 8-bit gray surface and
// returns the result as RGBA. It is the monochrome pass for rasterizers that can only
// produce colour output.
func MonochromeFromImage(img image.Image) *PixelBuffer {
	paper := FromImage(img)
	rect := image.Rect(0, 0, paper.Width, paper.Height)

	gray := image.NewGray(rect)
	draw.Draw(gray, rect, paper.image(), image.Point{}, draw.Src)

	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, gray, image.Point{}, draw.Src)

	return fromRGBA(dst)
}

// Filled returns a buffer where every pixel has the colour c, laid on white paper.
func Filled(width, height int, c color.RGBA) *PixelBuffer {
	rect := image.Rect(0, 0, width, height)
	solid := image.NewRGBA(rect)
	draw.Draw(solid, rect, image.NewUniform(c), image.Point{}, draw.Src)

	return FromImage(solid)
}

// PixelCount returns Width*Height.
func (buf *PixelBuffer) PixelCount() int {
	if buf == nil {
		return 0
	}

	return buf.Width * buf.Height
}

// image exposes the samples as an *image.RGBA without copying.
func (buf *PixelBuffer) image() *image.RGBA {
	return &image.RGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * bytesPerPixel,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
}

// validate reports whether the buffer can be analyzed.
func (buf *PixelBuffer) validate() error {
	if buf == nil {
		return fmt.Errorf("%w: no buffer", ErrInvalidBuffer)
	}

	if buf.PixelCount() <= 0 {
		return fmt.Errorf("%w: page is %dx%d pixels", ErrInvalidBuffer, buf.Width, buf.Height)
	}

	if len(buf.Pix) < buf.PixelCount()*bytesPerPixel {
		return fmt.Errorf(
			"%w: %d samples for %dx%d pixels",
			ErrInvalidBuffer,
			len(buf.Pix),
			buf.Width,
			buf.Height,
		)
	}

	return nil
}

// fromRGBA copies an *image.RGBA into a tightly packed buffer.
func fromRGBA(img *image.RGBA) *PixelBuffer {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rowBytes := width * bytesPerPixel

	if img.Stride == rowBytes && len(img.Pix) == rowBytes*height {
		return &PixelBuffer{Pix: img.Pix, Width: width, Height: height}
	}

	pix := make([]uint8, rowBytes*height)
	for y := range height {
		start := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(pix[y*rowBytes:(y+1)*rowBytes], img.Pix[start:start+rowBytes])
	}

	return &PixelBuffer{Pix: pix, Width: width, Height: height}
}
