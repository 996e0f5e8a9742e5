package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withGPSExif splices an APP1 EXIF segment into jpegData right after SOI.
// IFD0 holds only a GPS IFD pointer; the GPS IFD records 48°51'29.4"N
// 2°17'40"E.
func withGPSExif(t *testing.T, jpegData []byte) []byte {
	t.Helper()
	require.True(t, bytes.HasPrefix(jpegData, []byte{0xFF, 0xD8}), "not a JPEG")

	le := binary.LittleEndian
	tiff := make([]byte, 128)

	// TIFF header, IFD0 at offset 8.
	copy(tiff, "II")
	le.PutUint16(tiff[2:], 42)
	le.PutUint32(tiff[4:], 8)

	entry := func(at int, tag, typ uint16, count, value uint32) {
		le.PutUint16(tiff[at:], tag)
		le.PutUint16(tiff[at+2:], typ)
		le.PutUint32(tiff[at+4:], count)
		le.PutUint32(tiff[at+8:], value)
	}
	const (
		typeASCII    = 2
		typeLong     = 4
		typeRational = 5
	)

	// IFD0: one entry, GPSInfoIFDPointer -> 26.
	le.PutUint16(tiff[8:], 1)
	entry(10, 0x8825, typeLong, 1, 26)
	le.PutUint32(tiff[22:], 0)

	// GPS IFD at 26: four entries, rationals at 80 and 104.
	le.PutUint16(tiff[26:], 4)
	entry(28, 0x0001, typeASCII, 2, 0)
	copy(tiff[36:], "N\x00")
	entry(40, 0x0002, typeRational, 3, 80)
	entry(52, 0x0003, typeASCII, 2, 0)
	copy(tiff[60:], "E\x00")
	entry(64, 0x0004, typeRational, 3, 104)
	le.PutUint32(tiff[76:], 0)

	rationals := func(at int, v ...uint32) {
		for i, n := range v {
			le.PutUint32(tiff[at+4*i:], n)
		}
	}
	rationals(80, 48, 1, 51, 1, 2940, 100)
	rationals(104, 2, 1, 17, 1, 4000, 100)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := append([]byte{}, jpegData[:2]...)
	out = append(out, seg...)
	return append(out, jpegData[2:]...)
}

func TestWithGPSExif_IsReadable(t *testing.T) {
	data := withGPSExif(t, testJPEG(t, 40, 30))

	x, err := exif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	lat, lon, err := x.LatLong()
	require.NoError(t, err)
	assert.InDelta(t, 48.8582, lat, 0.001)
	assert.InDelta(t, 2.2944, lon, 0.001)

	_, _, err = image.Decode(bytes.NewReader(data))
	assert.NoError(t, err, "EXIF segment must not break JPEG decoding")
}

func TestImagingProcessor_StripGPSRemovesExif(t *testing.T) {
	data := withGPSExif(t, testJPEG(t, 64, 48))
	require.True(t, hasGPS(data))

	out, stripped, err := NewImagingProcessor().StripGPS(data, "jpg")

	require.NoError(t, err)
	assert.True(t, stripped)
	assert.False(t, hasGPS(out))
	_, err = exif.Decode(bytes.NewReader(out))
	assert.Error(t, err, "re-encoded image should carry no EXIF")

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestImagingProcessor_StripGPSUnsupportedFormat(t *testing.T) {
	data := withGPSExif(t, testJPEG(t, 16, 16))

	_, _, err := NewImagingProcessor().StripGPS(data, "heic")

	assert.ErrorIs(t, err, ErrUnsupportedImageFormat)
}

func TestConvertUploadToPhoto_StripsGPS(t *testing.T) {
	ctx := context.Background()
	router, _ := newLocalRouter(t)
	svc := NewPhotoAssetService(router, NewImagingProcessor(), nil, testLogger())

	data := withGPSExif(t, testJPEG(t, 300, 200))
	uploadURL, err := router.PutFile(ctx, "upload-0123456789abcdef.jpg", data)
	require.NoError(t, err)

	url, err := svc.ConvertUploadToPhoto(ctx, ConvertUploadParams{UploadURL: uploadURL, StripGPS: true})
	require.NoError(t, err)

	stored, err := router.ReadFile(ctx, url)
	require.NoError(t, err)
	assert.NotEqual(t, data, stored)
	assert.False(t, hasGPS(stored))
	assert.Equal(t, 300, decodeWidth(t, stored))
}

func TestConvertUploadToPhoto_KeepsGPSWhenNotStripping(t *testing.T) {
	ctx := context.Background()
	router, _ := newLocalRouter(t)
	svc := NewPhotoAssetService(router, NewImagingProcessor(), nil, testLogger())

	data := withGPSExif(t, testJPEG(t, 300, 200))
	uploadURL, err := router.PutFile(ctx, "upload-0123456789abcdef.jpg", data)
	require.NoError(t, err)

	url, err := svc.ConvertUploadToPhoto(ctx, ConvertUploadParams{UploadURL: uploadURL})
	require.NoError(t, err)

	stored, err := router.ReadFile(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}
