// Package assetname turns remote titles into storage-safe asset names and
// resolves collisions against whatever already exists.
package assetname

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxBaseLen caps a sanitized base name in bytes.
const MaxBaseLen = 120

// removedRun matches every run of characters that are not ASCII alphanumerics.
var removedRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Sanitize converts an arbitrary title into a base name containing only ASCII
// letters, digits and single underscores. Accented letters are folded to
// their base letter first so "Café" becomes "Cafe" rather than "Caf".
// The result may be empty; see BaseName.
func Sanitize(title string) string {
	s := strings.TrimSpace(title)
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	s = removedRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")

	if len(s) > MaxBaseLen {
		s = strings.TrimRight(s[:MaxBaseLen], "_")
	}
	return s
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// BaseName sanitizes title and falls back to a timestamp-derived name when
// nothing usable is left.
func BaseName(title string, now time.Time) string {
	if s := Sanitize(title); s != "" {
		return s
	}
	return "audio_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Split separates a file name into its base and extension (including the
// dot). A leading dot is not treated as an extension separator.
func Split(name string) (base, ext string) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}
