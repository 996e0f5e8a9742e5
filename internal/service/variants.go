package service

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/darkroom/internal/storage"
)

// =============================================================================
// Variant Definitions
// =============================================================================

// Variant is one optimized rendition stored next to a photo original.
type Variant struct {
	Suffix  storage.SizeSuffix
	Width   int
	Quality int
}

// PhotoVariants are generated for every photo, smallest first.
var PhotoVariants = []Variant{
	{Suffix: storage.SizeSmall, Width: 200, Quality: 90},
	{Suffix: storage.SizeMedium, Width: 640, Quality: 90},
	{Suffix: storage.SizeLarge, Width: 1080, Quality: 90},
}

// gpsStrippedQuality is the JPEG quality used when re-encoding an original
// to drop its location metadata.
const gpsStrippedQuality = 95

// ErrUnsupportedImageFormat is returned for extensions the processor cannot
// encode.
var ErrUnsupportedImageFormat = errors.New("unsupported image format")

// =============================================================================
// Interface Definition
// =============================================================================

// ImageProcessor resizes photos and removes location metadata.
type ImageProcessor interface {
	// Resize scales data to width pixels wide, preserving aspect ratio and
	// never upscaling, and encodes it in the format named by ext.
	Resize(data []byte, ext string, width, quality int) ([]byte, error)

	// StripGPS returns data without location metadata. When data carries
	// no GPS tags it is returned unchanged with stripped false.
	StripGPS(data []byte, ext string) (out []byte, stripped bool, err error)
}

// =============================================================================
// Implementation
// =============================================================================

// imagingProcessor implements ImageProcessor using the imaging library.
type imagingProcessor struct{}

// NewImagingProcessor creates a new image processor using the imaging library.
func NewImagingProcessor() ImageProcessor {
	return &imagingProcessor{}
}

// Resize decodes data honoring its EXIF orientation and fits it to width.
func (p *imagingProcessor) Resize(data []byte, ext string, width, quality int) ([]byte, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, ext)
	}

	img, err := decodeOriented(data)
	if err != nil {
		return nil, err
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	return encode(img, format, quality)
}

func decodeOriented(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func encode(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
