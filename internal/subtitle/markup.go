package subtitle

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	overrideBlockRe = regexp.MustCompile(`\{[^{}]*\}`)
	htmlTagRe       = regexp.MustCompile(`<[^<>]*>`)
	bracketNoteRe   = regexp.MustCompile(`\[[^\[\]]*\]`)
	parenNoteRe     = regexp.MustCompile(`\([^()]*\)`)
	creditsRe       = regexp.MustCompile(`(?i)(captioning|captioned|subtitles?|sync(ed)?|corrected|translat(ed|ion))\s+by\b[^\n]*`)
	urlRe           = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	musicRunRe      = regexp.MustCompile(`[♪♫♬♩]+`)
	spaceRunRe      = regexp.MustCompile(`[ \t]{2,}`)
)

// RemoveMarkup strips ASS override blocks, HTML-like tags, logical line
// breaks, music symbols, bracketed sound annotations, credit lines, and URLs
// from a cue's text payload. Unmatched literal braces are preserved. The
// function is idempotent.
func RemoveMarkup(text string) string {
	if text == "" {
		return ""
	}
	out := text
	// Strip nested override blocks until stable (e.g. "{\an8{\i1}}").
	for {
		next := overrideBlockRe.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = htmlTagRe.ReplaceAllString(out, "")
	out = strings.NewReplacer(`\N`, " ", `\n`, " ", `\t`, " ").Replace(out)
	out = musicRunRe.ReplaceAllString(out, "")
	out = bracketNoteRe.ReplaceAllString(out, "")
	out = parenNoteRe.ReplaceAllString(out, "")
	out = creditsRe.ReplaceAllString(out, "")
	out = urlRe.ReplaceAllString(out, "")
	out = spaceRunRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// StripTags removes inline styling only: ASS override blocks and HTML-like
// tags. Unlike RemoveMarkup it keeps annotations, credits, and line breaks,
// so it is safe to apply to text that stays in the output file.
func StripTags(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for {
		next := overrideBlockRe.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = htmlTagRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// IsCaption reports whether a cue is a sound-effect or speaker annotation:
// its text, once inline styling is gone, is fully wrapped in brackets or
// parentheses.
func IsCaption(text string) bool {
	content := strings.TrimSpace(StripTags(text))
	content = strings.ReplaceAll(content, "\n", " ")
	if content == "" {
		return false
	}
	wrapped := func(first, last byte) bool {
		return content[0] == first && content[len(content)-1] == last
	}
	return wrapped('[', ']') || wrapped('(', ')')
}

// drawing opcodes of the ASS vector drawing mini-language.
var drawingOpcodes = map[string]struct{}{
	"m": {}, "n": {}, "l": {}, "b": {}, "s": {}, "p": {}, "c": {},
}

// IsDrawingCommand reports whether text is an ASS vector drawing payload
// rather than dialogue. It treats empty content and stray single characters
// as drawings too, since they carry no translatable meaning, and otherwise
// requires at least 80% of tokens to be drawing opcodes or numbers.
func IsDrawingCommand(text string) bool {
	content := RemoveMarkup(text)
	if content == "" {
		return true
	}
	runes := []rune(content)
	if len(runes) == 1 {
		r := runes[0]
		if r == 'I' || unicode.IsDigit(r) {
			return false
		}
		return true
	}

	tokens := strings.Fields(content)
	if len(tokens) < 2 {
		return false
	}
	matched := 0
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if _, ok := drawingOpcodes[lower]; ok {
			matched++
			continue
		}
		if isNumericToken(token) {
			matched++
		}
	}
	return float64(matched)/float64(len(tokens)) >= 0.8
}

// IsMeaningless reports whether text carries nothing worth sending to a
// provider: empty after markup removal, or a lone letter that is neither "I"
// nor a digit.
func IsMeaningless(text string) bool {
	content := RemoveMarkup(text)
	if content == "" {
		return true
	}
	runes := []rune(content)
	if len(runes) != 1 {
		return false
	}
	r := runes[0]
	return r != 'I' && !unicode.IsDigit(r)
}

func isNumericToken(token string) bool {
	seenDigit := false
	for i, r := range token {
		switch {
		case unicode.IsDigit(r):
			seenDigit = true
		case r == '-' && i == 0:
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return seenDigit
}
