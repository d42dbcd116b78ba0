package formats

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Container tags accepted as sources and targets.
const (
	MP4  = "mp4"
	MKV  = "mkv"
	WebM = "webm"
	AVI  = "avi"
)

// DefaultMaxInputBytes caps accepted uploads at 500 MiB.
const DefaultMaxInputBytes int64 = 500 * 1024 * 1024

var supported = []string{MP4, MKV, WebM, AVI}

// Supported returns the supported container tags in display order.
func Supported() []string {
	out := make([]string, len(supported))
	copy(out, supported)
	return out
}

// IsSupported reports whether tag names a supported container.
func IsSupported(tag string) bool {
	tag = Normalize(tag)
	for _, f := range supported {
		if f == tag {
			return true
		}
	}
	return false
}

// Normalize lowercases a container tag and strips a leading dot.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.TrimPrefix(tag, ".")
}

// SourceFormat derives the container tag from a file name's extension.
// Names are NFC-normalized first so decomposed uploads still match.
func SourceFormat(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	return Normalize(filepath.Ext(name))
}

// MediaType maps a container tag to the MIME type stamped on converted output.
func MediaType(container string) string {
	container = Normalize(container)
	if container == MKV {
		return "video/x-matroska"
	}
	return "video/" + container
}

// ConvertedFilename replaces the final extension of name with target.
func ConvertedFilename(name, target string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "." + Normalize(target)
}
