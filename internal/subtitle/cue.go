package subtitle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format identifies a supported subtitle container format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
)

// ErrMalformed reports unparseable subtitle input.
var ErrMalformed = errors.New("malformed subtitle")

const byteOrderMark = "\uFEFF"

// Cue is one translatable entry of a document. Position is the cue's 0-based
// index among translatable cues and is the identifier used throughout the
// batching, fallback, and repair layers.
type Cue struct {
	Position int
	Start    time.Duration
	End      time.Duration
	Text     string
}

// Document is a parsed subtitle file. Non-text bytes (timecodes, style
// prefixes, headers, index lines) are retained verbatim for emission.
type Document struct {
	format  Format
	newline string
	bom     bool
	srt     []srtCue
	ass     assDocument
}

// Format returns the detected container format.
func (d *Document) Format() Format { return d.format }

// Cues returns the translatable cues in file order.
func (d *Document) Cues() []Cue {
	switch d.format {
	case FormatSRT:
		cues := make([]Cue, len(d.srt))
		for i, c := range d.srt {
			cues[i] = Cue{Position: i, Start: c.start, End: c.end, Text: strings.Join(c.lines, "\n")}
		}
		return cues
	case FormatASS:
		var cues []Cue
		for _, ev := range d.ass.events {
			if !ev.translatable {
				continue
			}
			cues = append(cues, Cue{Position: len(cues), Start: ev.start, End: ev.end, Text: ev.text})
		}
		return cues
	}
	return nil
}

// CueCount returns the number of translatable cues.
func (d *Document) CueCount() int {
	if d.format == FormatSRT {
		return len(d.srt)
	}
	count := 0
	for _, ev := range d.ass.events {
		if ev.translatable {
			count++
		}
	}
	return count
}

// SetText replaces the text payload of the cue at position. For SRT the text
// may contain newlines which become separate cue lines; for ASS it is written
// back as the event's text field unchanged.
func (d *Document) SetText(position int, text string) error {
	switch d.format {
	case FormatSRT:
		if position < 0 || position >= len(d.srt) {
			return fmt.Errorf("set text: position %d out of range", position)
		}
		d.srt[position].lines = strings.Split(text, "\n")
		return nil
	case FormatASS:
		idx := 0
		for i := range d.ass.events {
			if !d.ass.events[i].translatable {
				continue
			}
			if idx == position {
				d.ass.events[i].text = text
				return nil
			}
			idx++
		}
		return fmt.Errorf("set text: position %d out of range", position)
	}
	return fmt.Errorf("set text: unknown format %q", d.format)
}

// SetTiming overwrites the start/end of the cue at position. Used by the
// overlap-clamping post-processing step.
func (d *Document) SetTiming(position int, start, end time.Duration) error {
	switch d.format {
	case FormatSRT:
		if position < 0 || position >= len(d.srt) {
			return fmt.Errorf("set timing: position %d out of range", position)
		}
		c := &d.srt[position]
		c.start = start
		c.end = end
		c.timecodeRaw = formatSRTTimestamp(start) + " --> " + formatSRTTimestamp(end)
		return nil
	case FormatASS:
		idx := 0
		for i := range d.ass.events {
			ev := &d.ass.events[i]
			if !ev.translatable {
				continue
			}
			if idx == position {
				ev.start = start
				ev.end = end
				ev.startRaw = formatASSTimestamp(start)
				ev.endRaw = formatASSTimestamp(end)
				return nil
			}
			idx++
		}
		return fmt.Errorf("set timing: position %d out of range", position)
	}
	return fmt.Errorf("set timing: unknown format %q", d.format)
}

// InsertLeadingCue prepends a cue shown before the first existing cue. The
// pipeline uses it for the optional translator note.
func (d *Document) InsertLeadingCue(text string, duration time.Duration) {
	switch d.format {
	case FormatSRT:
		end := duration
		if len(d.srt) > 0 && d.srt[0].start < end {
			end = d.srt[0].start
		}
		if end <= 0 {
			end = duration
		}
		cue := srtCue{
			indexRaw:    "0",
			timecodeRaw: formatSRTTimestamp(0) + " --> " + formatSRTTimestamp(end),
			end:         end,
			lines:       strings.Split(text, "\n"),
		}
		d.srt = append([]srtCue{cue}, d.srt...)
		d.renumberSRT()
	case FormatASS:
		end := duration
		ev := assEvent{
			descriptor:   "Dialogue",
			prefix:       defaultASSPrefix(d.ass.formatFields, formatASSTimestamp(0), formatASSTimestamp(end)),
			text:         text,
			end:          end,
			translatable: true,
		}
		d.ass.events = append([]assEvent{ev}, d.ass.events...)
	}
}

// Emit serializes the document back to bytes.
func (d *Document) Emit() []byte {
	var b strings.Builder
	if d.bom {
		b.WriteString(byteOrderMark)
	}
	switch d.format {
	case FormatSRT:
		d.emitSRT(&b)
	case FormatASS:
		d.emitASS(&b)
	}
	out := b.String()
	if d.newline == "\r\n" {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return []byte(out)
}

// Parse detects the subtitle format and parses data into a Document.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	bom := strings.HasPrefix(text, byteOrderMark)
	if bom {
		text = strings.TrimPrefix(text, byteOrderMark)
	}
	newline := "\n"
	if strings.Contains(text, "\r\n") {
		newline = "\r\n"
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	text = strings.ReplaceAll(text, "\r", "\n")

	doc := &Document{newline: newline, bom: bom}
	if looksLikeASS(text) {
		doc.format = FormatASS
		if err := doc.parseASS(text); err != nil {
			return nil, err
		}
		return doc, nil
	}
	doc.format = FormatSRT
	if err := doc.parseSRT(text); err != nil {
		return nil, err
	}
	return doc, nil
}

func looksLikeASS(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.EqualFold(trimmed, "[Script Info]")
	}
	return false
}
