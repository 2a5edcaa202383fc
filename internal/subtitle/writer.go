package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Format renders cues as canonical SRT text.
func Format(cues []Cue) string {
	var b strings.Builder
	writeCues(&b, cues)
	return b.String()
}

// WriteFile writes cues as an SRT file, UTF-8, replacing any existing file.
func WriteFile(path string, cues []Cue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeCues(w, cues); err != nil {
		return err
	}
	return w.Flush()
}

func writeCues(w io.Writer, cues []Cue) error {
	for _, cue := range cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			cue.Index,
			FormatTimestamp(cue.Start),
			FormatTimestamp(cue.End),
			cue.Text); err != nil {
			return fmt.Errorf("write cue %d: %w", cue.Index, err)
		}
	}
	return nil
}

// FormatTimestamp renders a duration in SRT time notation HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
