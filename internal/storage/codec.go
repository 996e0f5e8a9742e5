package storage

import "regexp"

// storageURLPattern splits a storage URL into its base and last path
// segment, which must look like {base-name}-{id}.{ext}. Case-insensitive:
// Vercel Blob's random suffixes are mixed case.
var storageURLPattern = regexp.MustCompile(
	`(?i)^(.+)/((-*[a-z0-9][a-z0-9-]*-+([a-z0-9]+))\.([a-z]{1,4}))$`,
)

// FileNameParts are the components recovered from a storage URL.
type FileNameParts struct {
	URLBase       string // everything before the last "/"
	FileName      string // last path segment, e.g. "photo-abc123-sm.jpg"
	FileNameBase  string // FileName without extension
	FileID        string // component after the last hyphen run
	FileExtension string // extension without the dot
}

// ParseKey decomposes a storage URL. URLs that don't follow the naming
// scheme produce a zero FileNameParts.
func ParseKey(url string) FileNameParts {
	m := storageURLPattern.FindStringSubmatch(url)
	if m == nil {
		return FileNameParts{}
	}
	return FileNameParts{
		URLBase:       m[1],
		FileName:      m[2],
		FileNameBase:  m[3],
		FileID:        m[4],
		FileExtension: m[5],
	}
}

// Matched reports whether the URL followed the naming scheme.
func (p FileNameParts) Matched() bool {
	return p.FileName != ""
}
