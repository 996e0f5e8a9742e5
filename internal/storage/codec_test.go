package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want FileNameParts
	}{
		{
			name: "vercel blob photo",
			url:  "https://abc.public.blob.vercel-storage.com/photo-k3j2h4g5f6d7s8a9.jpg",
			want: FileNameParts{
				URLBase:       "https://abc.public.blob.vercel-storage.com",
				FileName:      "photo-k3j2h4g5f6d7s8a9.jpg",
				FileNameBase:  "photo-k3j2h4g5f6d7s8a9",
				FileID:        "k3j2h4g5f6d7s8a9",
				FileExtension: "jpg",
			},
		},
		{
			name: "variant suffix",
			url:  "https://photos.example.com/photo-k3j2h4g5f6d7s8a9-md.png",
			want: FileNameParts{
				URLBase:       "https://photos.example.com",
				FileName:      "photo-k3j2h4g5f6d7s8a9-md.png",
				FileNameBase:  "photo-k3j2h4g5f6d7s8a9-md",
				FileID:        "md",
				FileExtension: "png",
			},
		},
		{
			name: "mixed case random suffix",
			url:  "https://abc.public.blob.vercel-storage.com/upload-1a2b3c-Xy9QrT.JPEG",
			want: FileNameParts{
				URLBase:       "https://abc.public.blob.vercel-storage.com",
				FileName:      "upload-1a2b3c-Xy9QrT.JPEG",
				FileNameBase:  "upload-1a2b3c-Xy9QrT",
				FileID:        "Xy9QrT",
				FileExtension: "JPEG",
			},
		},
		{
			name: "local path",
			url:  "/uploads/upload-0123456789abcdef.webp",
			want: FileNameParts{
				URLBase:       "/uploads",
				FileName:      "upload-0123456789abcdef.webp",
				FileNameBase:  "upload-0123456789abcdef",
				FileID:        "0123456789abcdef",
				FileExtension: "webp",
			},
		},
		{
			name: "path style bucket",
			url:  "http://localhost:9000/gallery/photo-abc--def.jpg",
			want: FileNameParts{
				URLBase:       "http://localhost:9000/gallery",
				FileName:      "photo-abc--def.jpg",
				FileNameBase:  "photo-abc--def",
				FileID:        "def",
				FileExtension: "jpg",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKey(tt.url)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Matched())
		})
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	bases := []string{
		"https://abc.public.blob.vercel-storage.com",
		"https://bucket.s3.us-east-1.amazonaws.com",
		"/uploads",
	}
	for _, base := range bases {
		for _, prefix := range []string{PrefixPhoto, PrefixUpload} {
			for _, ext := range []string{"jpg", "png", "webp", "tif"} {
				id := GenerateStorageID()
				url := base + "/" + prefix + "-" + id + "." + ext

				got := ParseKey(url)

				assert.Equal(t, base, got.URLBase, url)
				assert.Equal(t, prefix+"-"+id+"."+ext, got.FileName, url)
				assert.Equal(t, prefix+"-"+id, got.FileNameBase, url)
				assert.Equal(t, id, got.FileID, url)
				assert.Equal(t, ext, got.FileExtension, url)
			}
		}
	}
}

func TestParseKey_NonMatching(t *testing.T) {
	urls := []string{
		"",
		"not a url",
		"photo-abc.jpg",
		"https://example.com/photo.jpg",
		"https://example.com/photo-abc.jpegxl",
		"https://example.com/photo-abc.",
		"https://example.com/photo-.jpg",
		"https://example.com/photo_abc-1.jpg",
		"https://example.com/photo-abc.jpg?size=1",
		"https://example.com/",
		strings.Repeat("/", 10),
	}

	for _, url := range urls {
		t.Run(url, func(t *testing.T) {
			require.NotPanics(t, func() { ParseKey(url) })
			got := ParseKey(url)
			assert.Equal(t, FileNameParts{}, got)
			assert.False(t, got.Matched())
		})
	}
}
