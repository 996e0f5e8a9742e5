package service

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// StripGPS re-encodes data without any EXIF when it carries GPS tags. The
// orientation tag is applied to the pixels first, so the image keeps its
// visual orientation once the metadata is gone.
func (p *imagingProcessor) StripGPS(data []byte, ext string) ([]byte, bool, error) {
	if !hasGPS(data) {
		return data, false, nil
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, ext)
	}

	img, err := decodeOriented(data)
	if err != nil {
		return nil, false, err
	}

	out, err := encode(img, format, gpsStrippedQuality)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// hasGPS reports whether data has EXIF GPS coordinates. Data without
// readable EXIF has none.
func hasGPS(data []byte) bool {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	if _, err := x.Get(exif.GPSInfoIFDPointer); err == nil {
		return true
	}
	lat, lon, err := x.LatLong()
	return err == nil && !math.IsNaN(lat) && !math.IsNaN(lon)
}

// CaptureTime returns the EXIF capture time of data. The result carries the
// camera's wall clock in time.Local when the file records no offset.
func CaptureTime(data []byte) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
