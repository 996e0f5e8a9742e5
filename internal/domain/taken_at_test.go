package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTakenAtNaive(t *testing.T) {
	takenAt := time.Date(2023, 7, 14, 18, 30, 5, 0, time.FixedZone("PDT", -7*3600))

	tests := []struct {
		name         string
		raw          string
		want         string
		wantRepaired bool
	}{
		{
			name: "canonical is untouched",
			raw:  "2023-07-14 11:30:05",
			want: "2023-07-14 11:30:05",
		},
		{
			name:         "date with trailing space",
			raw:          "2023-07-14 ",
			want:         "2023-07-14 00:00:00",
			wantRepaired: true,
		},
		{
			name:         "bare date",
			raw:          "2023-07-14",
			want:         "2023-07-14 00:00:00",
			wantRepaired: true,
		},
		{
			name:         "missing seconds",
			raw:          "2023-07-14 11:30",
			want:         "2023-07-14 11:30:00",
			wantRepaired: true,
		},
		{
			name:         "canonical with trailing space",
			raw:          "2023-07-14 11:30:05 ",
			want:         "2023-07-15 01:30:05",
			wantRepaired: true,
		},
		{
			name:         "garbage falls back to taken_at in UTC",
			raw:          "July 14th",
			want:         "2023-07-15 01:30:05",
			wantRepaired: true,
		},
		{
			name:         "empty",
			raw:          "",
			want:         "2023-07-15 01:30:05",
			wantRepaired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, repaired := NormalizeTakenAtNaive(tt.raw, takenAt)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRepaired, repaired)
			assert.True(t, IsCanonicalTakenAtNaive(got))
		})
	}
}

func TestIsCanonicalTakenAtNaive(t *testing.T) {
	assert.True(t, IsCanonicalTakenAtNaive("1999-12-31 23:59:59"))
	assert.False(t, IsCanonicalTakenAtNaive(" 1999-12-31 23:59:59"))
	assert.False(t, IsCanonicalTakenAtNaive("1999-12-31T23:59:59"))
	assert.False(t, IsCanonicalTakenAtNaive("1999-12-31"))
}

func TestNewPhoto(t *testing.T) {
	takenAt := time.Date(2023, 7, 14, 11, 30, 5, 0, time.UTC)

	p, ok := NewPhoto("/uploads/photo-0123456789abcdef.jpg", takenAt)
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", p.ID)
	assert.Equal(t, "jpg", p.Extension)
	assert.Equal(t, "2023-07-14 11:30:05", p.TakenAtNaive)

	_, ok = NewPhoto("/uploads/photo-0123456789abcdef-sm.jpg", takenAt)
	assert.False(t, ok)

	_, ok = NewPhoto("https://example.com/not-a-photo", takenAt)
	assert.False(t, ok)
}
