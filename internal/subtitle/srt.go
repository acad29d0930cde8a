package subtitle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type srtCue struct {
	indexRaw    string
	timecodeRaw string
	start       time.Duration
	end         time.Duration
	lines       []string
}

func (d *Document) parseSRT(text string) error {
	lines := strings.Split(text, "\n")
	i := 0
	var prevStart time.Duration
	for i < len(lines) {
		// Skip any number of blank lines between cues.
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		indexRaw := strings.TrimSpace(lines[i])
		if _, err := strconv.Atoi(indexRaw); err != nil {
			return fmt.Errorf("%w: expected cue index, got %q", ErrMalformed, indexRaw)
		}
		i++
		if i >= len(lines) {
			return fmt.Errorf("%w: cue %s truncated before timecode", ErrMalformed, indexRaw)
		}

		timecodeRaw := strings.TrimRight(lines[i], " \t")
		start, end, err := parseSRTTimecode(timecodeRaw)
		if err != nil {
			return err
		}
		if len(d.srt) > 0 && start < prevStart {
			return fmt.Errorf("%w: cue %s starts before previous cue", ErrMalformed, indexRaw)
		}
		prevStart = start
		i++

		var cueLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			cueLines = append(cueLines, lines[i])
			i++
		}
		if len(cueLines) == 0 {
			return fmt.Errorf("%w: cue %s has no text", ErrMalformed, indexRaw)
		}

		d.srt = append(d.srt, srtCue{
			indexRaw:    indexRaw,
			timecodeRaw: timecodeRaw,
			start:       start,
			end:         end,
			lines:       cueLines,
		})
	}
	return nil
}

func (d *Document) emitSRT(b *strings.Builder) {
	for i, cue := range d.srt {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(cue.indexRaw)
		b.WriteString("\n")
		b.WriteString(cue.timecodeRaw)
		b.WriteString("\n")
		for _, line := range cue.lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
}

func (d *Document) renumberSRT() {
	for i := range d.srt {
		d.srt[i].indexRaw = strconv.Itoa(i + 1)
	}
}

func parseSRTTimecode(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid timecode line %q", ErrMalformed, line)
	}
	start, err := parseSRTTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseSRTTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseSRTTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty timestamp", ErrMalformed)
	}
	// SRT standard uses comma for milliseconds; tolerate a period.
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}

func formatSRTTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
