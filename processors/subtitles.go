package processors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vidquest/core"
)

// ParseSubtitleFile reads a .vtt or .srt file into time-ordered cues.
func ParseSubtitleFile(videoID, path string) ([]core.SubtitleCue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return ParseVTT(videoID, f)
	case ".srt":
		return ParseSRT(videoID, f)
	default:
		return nil, fmt.Errorf("unsupported subtitle format %q", filepath.Ext(path))
	}
}

// ParseVTT parses WebVTT cues.
//
//	WEBVTT
//
//	00:00:00.000 --> 00:00:05.000
//	intro to CNNs
func ParseVTT(videoID string, r io.Reader) ([]core.SubtitleCue, error) {
	return parseCues(videoID, r, ".")
}

// ParseSRT parses SubRip cues.
//
//	1
//	00:00:00,000 --> 00:00:05,000
//	intro to CNNs
func ParseSRT(videoID string, r io.Reader) ([]core.SubtitleCue, error) {
	return parseCues(videoID, r, ",")
}

func parseCues(videoID string, r io.Reader, msSep string) ([]core.SubtitleCue, error) {
	var cues []core.SubtitleCue
	var cur *core.SubtitleCue
	var text []string

	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, " ")
			cues = append(cues, *cur)
			cur = nil
			text = nil
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") {
			continue
		}
		if isDigitOnly(line) && cur == nil {
			continue // SRT sequence number
		}
		if strings.Contains(line, "-->") {
			flush()
			parts := strings.SplitN(line, "-->", 2)
			start, err := parseTimestamp(strings.TrimSpace(parts[0]), msSep)
			if err != nil {
				return nil, &core.MalformedInputError{Index: len(cues), Reason: err.Error()}
			}
			// VTT cue settings may trail the end timestamp
			endField := strings.Fields(strings.TrimSpace(parts[1]))
			if len(endField) == 0 {
				return nil, &core.MalformedInputError{Index: len(cues), Reason: "missing end timestamp"}
			}
			end, err := parseTimestamp(endField[0], msSep)
			if err != nil {
				return nil, &core.MalformedInputError{Index: len(cues), Reason: err.Error()}
			}
			cur = &core.SubtitleCue{VideoID: videoID, Start: start, End: end}
			continue
		}
		if cur != nil {
			text = append(text, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	flush()
	return cues, nil
}

// parseTimestamp handles HH:MM:SS.mmm, MM:SS.mmm and bare seconds, with the
// millisecond separator "." (VTT) or "," (SRT).
func parseTimestamp(s, msSep string) (float64, error) {
	var ms float64
	if i := strings.LastIndex(s, msSep); i >= 0 {
		frac, err := strconv.ParseFloat("0."+s[i+1:], 64)
		if err != nil {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		ms = frac
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + n
	}
	return float64(total) + ms, nil
}

func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
