package publish

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// markDivisor sets the mark width to a fraction of the photo width.
	markDivisor = 6
	markMargin  = 10
	jpegQuality = 90
)

// Watermarker stamps a fixed image onto the bottom-right corner of photos.
// Scaled copies of the mark are cached by target width.
type Watermarker struct {
	mark   image.Image
	scaled *lru.Cache[int, *image.NRGBA]
}

// LoadWatermarker reads the mark from an image file, typically a PNG with
// transparency.
func LoadWatermarker(path string) (*Watermarker, error) {
	mark, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watermark: %w", err)
	}
	return NewWatermarker(mark)
}

// NewWatermarker creates a Watermarker stamping mark onto photos.
func NewWatermarker(mark image.Image) (*Watermarker, error) {
	if mark.Bounds().Dx() == 0 || mark.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("watermark image is empty")
	}
	cache, err := lru.New[int, *image.NRGBA](32)
	if err != nil {
		return nil, fmt.Errorf("create watermark cache: %w", err)
	}
	return &Watermarker{mark: mark, scaled: cache}, nil
}

// Apply decodes a photo, composites the mark and re-encodes it as JPEG.
func (w *Watermarker) Apply(photo []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(photo), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	out := w.stamp(src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Watermarker) stamp(src image.Image) image.Image {
	b := src.Bounds()
	width := b.Dx() / markDivisor
	if width == 0 {
		return src
	}
	mark := w.sized(width)
	pos := image.Pt(
		b.Max.X-mark.Bounds().Dx()-markMargin,
		b.Max.Y-mark.Bounds().Dy()-markMargin,
	)
	return imaging.Overlay(src, mark, pos, 1.0)
}

func (w *Watermarker) sized(width int) *image.NRGBA {
	if m, ok := w.scaled.Get(width); ok {
		return m
	}
	m := imaging.Resize(w.mark, width, 0, imaging.Lanczos)
	w.scaled.Add(width, m)
	return m
}
