package file

import (
	"os"
	"path/filepath"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if lastDot <= 0 {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return filepath.Join(dir, filename+ext)
	}

	nameWithoutExt := filename[:lastDot]

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return filepath.Join(dir, nameWithoutExt+ext)
}

// StemSuffixed inserts a suffix between the file stem and its extension:
// StemSuffixed("a/b.mkv", "clip-00:10", ".srt") -> "a/b.clip-00:10.srt".
// An empty suffix degrades to ReplaceExt.
func StemSuffixed(path, suffix, ext string) string {
	if suffix == "" {
		return ReplaceExt(path, ext)
	}
	base := ReplaceExt(path, "")
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + "." + suffix + ext
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
