// Package library walks configured media directories and finds recordings
// that do not have a generated subtitle track yet.
package library

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"subforge/pkg/file"
	"subforge/pkg/log"
)

var mediaExts = []string{
	".mkv", ".mp4", ".avi", ".mov", ".m4v", ".ts", ".webm",
	".wav", ".mp3", ".m4a", ".flac", ".ogg",
}

// Candidate is a media file without a subtitle sibling.
type Candidate struct {
	MediaPath string    `json:"media_path"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

type Scanner struct {
	dirs   []string
	logger *log.Logger
}

func NewScanner(dirs []string, logger *log.Logger) *Scanner {
	return &Scanner{dirs: dirs, logger: logger}
}

// Scan walks every configured directory and returns media files that have
// no .srt sibling, ordered by path. Unreadable directories are logged and
// skipped rather than failing the whole scan.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	ret := make([]Candidate, 0)

	for _, dir := range s.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("Skipping unreadable path %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if !slices.Contains(mediaExts, ext) {
				return nil
			}
			if hasSubtitleSibling(path) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				s.logger.Warn("Skipping %s: %v", path, err)
				return nil
			}
			ret = append(ret, Candidate{
				MediaPath: path,
				Size:      info.Size(),
				ModTime:   info.ModTime(),
			})
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("Scan of %s aborted: %v", dir, err)
		}
	}

	slices.SortFunc(ret, func(a, b Candidate) int {
		return strings.Compare(a.MediaPath, b.MediaPath)
	})
	return ret, nil
}

// hasSubtitleSibling reports whether a subtitle file already exists for the
// media file, either as an exact .srt sibling or as any "<stem>.*.srt"
// variant (language-suffixed files).
func hasSubtitleSibling(mediaPath string) bool {
	if file.Exists(file.ReplaceExt(mediaPath, ".srt")) {
		return true
	}

	dir := filepath.Dir(mediaPath)
	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, stem+".") && strings.HasSuffix(strings.ToLower(name), ".srt") {
			return true
		}
	}
	return false
}
