package asset

import (
	"path"
	"strings"
)

// Durable store layout.
const (
	AudioPrefix     = "audio/"
	ThumbnailPrefix = "thumbnails/"
	StemsPrefix     = "stems/"
	ChordsPrefix    = "chords/"
)

// BaseName strips the extension from an asset name.
func BaseName(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// AudioKey is the primary artifact key.
func AudioKey(name string) string { return AudioPrefix + name }

// ThumbnailKey is the key for a thumbnail file name as stored in
// Record.ImageURL.
func ThumbnailKey(image string) string { return ThumbnailPrefix + image }

// StemPrefix is the folder holding an asset's stems, with trailing slash.
func StemPrefix(folder string) string { return StemsPrefix + folder + "/" }

// StemKey is the key of one stem file.
func StemKey(folder, stem string) string { return StemPrefix(folder) + stem }

// ChordsKey is where an asset's chord document lives.
func ChordsKey(name string) string { return ChordsPrefix + BaseName(name) + "_chords.json" }

// ValidName reports whether name is usable as a record key and key suffix:
// non-empty, no path separators, no parent references, no leading dot or dash.
func ValidName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return false
	}
	return name[0] != '.' && name[0] != '-'
}
