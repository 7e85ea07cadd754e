package cache

import (
	"strconv"
	"strings"
)

// Key identifies a cached response: the server endpoint plus the operation suffix.
type Key struct {
	Host   string
	Port   int
	Path   string
	Suffix string
}

// FileName returns the entry's file name inside the cache directory.
// Distinct keys with the same sanitized form share a file; the last write wins.
func (k Key) FileName() string {
	parts := []string{sanitize(k.Host), strconv.Itoa(k.Port)}
	if p := strings.Trim(k.Path, "/"); p != "" {
		parts = append(parts, sanitize(p))
	}
	parts = append(parts, sanitize(strings.Trim(k.Suffix, "/")))
	return strings.Join(parts, "_") + FileExt
}

func (k Key) String() string {
	return k.Host + ":" + strconv.Itoa(k.Port) + "/" + strings.Trim(k.Path, "/") + "/" + strings.Trim(k.Suffix, "/")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}
