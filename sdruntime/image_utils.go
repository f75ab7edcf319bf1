package sdruntime

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Image errors
var (
	ErrImageEmpty       = errors.New("sdruntime: image is empty")
	ErrImageInvalidSize = errors.New("sdruntime: invalid image dimensions")
)

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// ToNRGBA returns img as a w x h NRGBA image. Images that already match are
// copied, anything else is scaled with Catmull-Rom.
func ToNRGBA(img image.Image, w, h int) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrImageEmpty
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageInvalidSize, w, h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := img.Bounds()
	if src.Dx() == w && src.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst, nil
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrImageEmpty
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("sdruntime: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes PNG data, rejecting anything without the signature.
func DecodePNG(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrImageEmpty
	}
	if !IsPNG(data) {
		return nil, fmt.Errorf("sdruntime: data is not a PNG")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sdruntime: decode png: %w", err)
	}
	return img, nil
}
