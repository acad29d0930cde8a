package subtitle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type assDocument struct {
	// headerLines holds everything up to and including the Format: line of
	// the [Events] section, verbatim.
	headerLines  []string
	formatFields []string
	events       []assEvent
}

// assEvent is one line of the [Events] section. Non-dialogue lines (Comment
// events, blanks) keep their raw text and are never translated.
type assEvent struct {
	raw          string // verbatim line for non-translatable entries
	descriptor   string // "Dialogue" for translatable events
	prefix       string // fields before the text field, commas included
	startRaw     string
	endRaw       string
	text         string
	start        time.Duration
	end          time.Duration
	translatable bool
}

func (d *Document) parseASS(text string) error {
	lines := strings.Split(text, "\n")
	// Trailing newline produces one empty trailing element; drop it so the
	// emitter controls the final newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	inEvents := false
	sawFormat := false
	var prevStart time.Duration
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inEvents {
			d.ass.headerLines = append(d.ass.headerLines, line)
			if strings.EqualFold(trimmed, "[Events]") {
				inEvents = true
			}
			continue
		}
		if !sawFormat {
			d.ass.headerLines = append(d.ass.headerLines, line)
			if strings.HasPrefix(trimmed, "Format:") {
				sawFormat = true
				declared := strings.TrimPrefix(trimmed, "Format:")
				for _, field := range strings.Split(declared, ",") {
					d.ass.formatFields = append(d.ass.formatFields, strings.TrimSpace(field))
				}
			}
			continue
		}

		if strings.HasPrefix(trimmed, "Dialogue:") {
			ev, err := parseASSDialogue(line, d.ass.formatFields)
			if err != nil {
				return err
			}
			if ev.start < prevStart && hasTranslatable(d.ass.events) {
				return fmt.Errorf("%w: dialogue event starts before previous event", ErrMalformed)
			}
			prevStart = ev.start
			d.ass.events = append(d.ass.events, ev)
			continue
		}
		d.ass.events = append(d.ass.events, assEvent{raw: line})
	}

	if !inEvents || !sawFormat {
		return fmt.Errorf("%w: missing [Events] section", ErrMalformed)
	}
	return nil
}

func hasTranslatable(events []assEvent) bool {
	for _, ev := range events {
		if ev.translatable {
			return true
		}
	}
	return false
}

func parseASSDialogue(line string, formatFields []string) (assEvent, error) {
	body := strings.TrimPrefix(strings.TrimLeft(line, " \t"), "Dialogue:")
	fieldCount := len(formatFields)
	if fieldCount == 0 {
		fieldCount = 10 // standard Format: Layer..Text
	}
	parts := strings.SplitN(body, ",", fieldCount)
	if len(parts) < fieldCount {
		return assEvent{}, fmt.Errorf("%w: truncated dialogue event %q", ErrMalformed, line)
	}

	startIdx, endIdx, textIdx := assFieldIndexes(formatFields, fieldCount)

	startRaw := strings.TrimSpace(parts[startIdx])
	endRaw := strings.TrimSpace(parts[endIdx])
	start, err := parseASSTimestamp(startRaw)
	if err != nil {
		return assEvent{}, err
	}
	end, err := parseASSTimestamp(endRaw)
	if err != nil {
		return assEvent{}, err
	}

	text := parts[textIdx]
	prefix := strings.TrimSuffix(body, text)
	return assEvent{
		descriptor:   "Dialogue",
		prefix:       prefix,
		startRaw:     startRaw,
		endRaw:       endRaw,
		text:         text,
		start:        start,
		end:          end,
		translatable: true,
	}, nil
}

// assFieldIndexes locates the Start, End, and Text slots declared by the
// [Events] Format line; absent declarations fall back to the standard layout.
func assFieldIndexes(formatFields []string, fieldCount int) (startIdx, endIdx, textIdx int) {
	startIdx, endIdx, textIdx = 1, 2, fieldCount-1
	for i, name := range formatFields {
		switch strings.ToLower(name) {
		case "start":
			startIdx = i
		case "end":
			endIdx = i
		case "text":
			textIdx = i
		}
	}
	return startIdx, endIdx, textIdx
}

func (d *Document) emitASS(b *strings.Builder) {
	fieldCount := len(d.ass.formatFields)
	if fieldCount == 0 {
		fieldCount = 10
	}
	startIdx, endIdx, _ := assFieldIndexes(d.ass.formatFields, fieldCount)
	for _, line := range d.ass.headerLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, ev := range d.ass.events {
		if !ev.translatable {
			b.WriteString(ev.raw)
			b.WriteString("\n")
			continue
		}
		prefix := ev.prefix
		// Timing rewrites replace the raw timestamps inside the prefix.
		prefix = replaceField(prefix, startIdx, ev.startRaw)
		prefix = replaceField(prefix, endIdx, ev.endRaw)
		b.WriteString(ev.descriptor)
		b.WriteString(":")
		b.WriteString(prefix)
		b.WriteString(ev.text)
		b.WriteString("\n")
	}
}

func replaceField(prefix string, index int, value string) string {
	parts := strings.Split(prefix, ",")
	if index >= len(parts) {
		return prefix
	}
	if strings.TrimSpace(parts[index]) == value {
		return prefix
	}
	parts[index] = value
	return strings.Join(parts, ",")
}

func parseASSTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: invalid event timestamp %q", ErrMalformed, value)
	}
	secParts := strings.Split(parts[2], ".")
	if len(secParts) != 2 {
		return 0, fmt.Errorf("%w: invalid event timestamp %q", ErrMalformed, value)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	seconds, errS := strconv.Atoi(secParts[0])
	centis, errC := strconv.Atoi(secParts[1])
	if errH != nil || errM != nil || errS != nil || errC != nil {
		return 0, fmt.Errorf("%w: invalid event timestamp %q", ErrMalformed, value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(centis)*10*time.Millisecond
	return total, nil
}

func formatASSTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	centis := d / (10 * time.Millisecond)
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

func defaultASSPrefix(formatFields []string, startRaw, endRaw string) string {
	fieldCount := len(formatFields)
	if fieldCount == 0 {
		fieldCount = 10
	}
	parts := make([]string, fieldCount-1)
	for i := range parts {
		parts[i] = ""
	}
	startIdx, endIdx, _ := assFieldIndexes(formatFields, fieldCount)
	layerIdx := 0
	for i, name := range formatFields {
		switch strings.ToLower(name) {
		case "layer":
			layerIdx = i
		case "style":
			if i < len(parts) {
				parts[i] = "Default"
			}
		}
	}
	if layerIdx < len(parts) {
		parts[layerIdx] = " 0"
	}
	if startIdx < len(parts) {
		parts[startIdx] = startRaw
	}
	if endIdx < len(parts) {
		parts[endIdx] = endRaw
	}
	return strings.Join(parts, ",") + ","
}
