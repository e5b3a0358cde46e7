package constants

import "strings"

// AllowedExtensions holds the file extensions accepted as plan-set sources.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Rendered page images and label files.
const (
	ImageExt = ".png"
	LabelExt = ".txt"
)
