package domain

import (
	"regexp"
	"strings"
	"time"
)

// TakenAtNaiveLayout is the canonical wall-clock capture time format.
const TakenAtNaiveLayout = "2006-01-02 15:04:05"

var (
	takenAtCanonical     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	takenAtDateOnly      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	takenAtMissingSecond = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)
)

// IsCanonicalTakenAtNaive reports whether raw is exactly
// "YYYY-MM-DD HH:MM:SS" with no surrounding whitespace.
func IsCanonicalTakenAtNaive(raw string) bool {
	return takenAtCanonical.MatchString(raw)
}

// FormatTakenAtNaive renders t in the canonical layout, in UTC.
func FormatTakenAtNaive(t time.Time) string {
	return t.UTC().Format(TakenAtNaiveLayout)
}

// NormalizeTakenAtNaive repairs a malformed wall-clock capture time.
//
// Canonical values are returned unchanged with repaired false. Otherwise
// the trimmed value is completed when it is a bare date (midnight) or lacks
// seconds; anything else is replaced with takenAt in UTC.
func NormalizeTakenAtNaive(raw string, takenAt time.Time) (fixed string, repaired bool) {
	if IsCanonicalTakenAtNaive(raw) {
		return raw, false
	}

	trimmed := strings.TrimSpace(raw)
	switch {
	case takenAtDateOnly.MatchString(trimmed):
		return trimmed + " 00:00:00", true
	case takenAtMissingSecond.MatchString(trimmed):
		return trimmed + ":00", true
	}
	return FormatTakenAtNaive(takenAt), true
}
