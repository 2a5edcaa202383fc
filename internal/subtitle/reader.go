package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

var timeLineRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// Parse reads SRT-formatted cues from r. Lines that do not fit the
// index/time/text state machine are skipped, matching lenient readers in
// the wild; a malformed time line is an error because timing is the one
// thing downstream re-timing cannot recover.
func Parse(r io.Reader) ([]Cue, error) {
	var cues []Cue
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	current := Cue{}
	state := "index"
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue // skip non-index lines
			}
			current.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := ParseTimeRange(line)
			if err != nil {
				return nil, fmt.Errorf("parse time line: %w", err)
			}
			current.Start = start
			current.End = end
			state = "text"
			textLines = nil

		case "text":
			if line == "" {
				if len(textLines) > 0 {
					current.Text = strings.Join(textLines, "\n")
					cues = append(cues, current)
					current = Cue{}
				}
				state = "index"
				textLines = nil
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	// last block may lack a trailing blank line
	if state == "text" && len(textLines) > 0 {
		current.Text = strings.Join(textLines, "\n")
		cues = append(cues, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subtitle stream: %w", err)
	}

	return cues, nil
}

// ParseString parses SRT text held in memory, as returned by backends
// that emit raw subtitle text instead of structured cues.
func ParseString(s string) ([]Cue, error) {
	return Parse(strings.NewReader(s))
}

// ReadFile parses an SRT file from disk.
func ReadFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// ParseTimeRange parses one `HH:MM:SS,mmm --> HH:MM:SS,mmm` line.
func ParseTimeRange(line string) (time.Duration, time.Duration, error) {
	matches := timeLineRe.FindStringSubmatch(line)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", line)
	}

	parse := func(h, m, s, ms string) time.Duration {
		hh, _ := strconv.Atoi(h)
		mm, _ := strconv.Atoi(m)
		ss, _ := strconv.Atoi(s)
		msms, _ := strconv.Atoi(ms)

		return time.Duration(hh)*time.Hour +
			time.Duration(mm)*time.Minute +
			time.Duration(ss)*time.Second +
			time.Duration(msms)*time.Millisecond
	}

	return parse(matches[1], matches[2], matches[3], matches[4]),
		parse(matches[5], matches[6], matches[7], matches[8]),
		nil
}

// DetectLanguage guesses the dominant language of a cue list.
func DetectLanguage(cues []Cue) language.Tag {
	if len(cues) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, cue := range cues {
		lang := whatlanggo.DetectLang(cue.Text).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}
