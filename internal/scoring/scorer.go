// Package scoring ranks embedded subtitle tracks against the configured
// source-language priority list and picks the best source for translation.
package scoring

import (
	"strings"

	"translarr/internal/language"
	"translarr/internal/media/probe"
)

// QualityThreshold is the minimum pre-bonus score a track needs before the
// language priority bonus applies.
const QualityThreshold = 30

const priorityBonusStep = 80

var fullDialogueHints = []string{"full", "dialogue", "dialog", "complete"}

var sparseHints = []string{"signs", "songs", "s&s", "signs/songs", "forced only", "commentary"}

var sdhHints = []string{"sdh", "hearing impaired", "cc", "closed caption"}

// Pick scores the candidate tracks against the priority-ordered source
// languages and returns the matched language plus the winning track. The
// second return is nil when no track matches any configured language.
func Pick(tracks []probe.SubtitleStream, sourceLanguages []string) (string, *probe.SubtitleStream) {
	var best *probe.SubtitleStream
	bestScore := 0
	bestLang := ""

	for i := range tracks {
		track := &tracks[i]
		lang, position := matchLanguage(track.Language, sourceLanguages)
		if lang == "" {
			continue
		}
		score := Score(track)
		if score >= QualityThreshold {
			score += priorityBonusStep * (len(sourceLanguages) - position)
		}
		if best == nil || score > bestScore || (score == bestScore && track.StreamIndex < best.StreamIndex) {
			best = track
			bestScore = score
			bestLang = lang
		}
	}
	return bestLang, best
}

// Score computes the quality score of a single matched track, without the
// language priority bonus.
func Score(track *probe.SubtitleStream) int {
	score := 50
	title := strings.ToLower(track.Title)
	if containsAny(title, fullDialogueHints) {
		score += 25
	}
	if containsAny(title, sparseHints) {
		score -= 40
	}
	if containsAny(title, sdhHints) {
		score -= 10
	}
	if track.IsForced {
		score -= 10
	} else {
		score += 5
	}
	if track.IsDefault {
		score += 5
	}
	return score
}

func matchLanguage(trackLang string, configured []string) (string, int) {
	if strings.TrimSpace(trackLang) == "" {
		return "", -1
	}
	for i, lang := range configured {
		if language.Matches(trackLang, lang) {
			return lang, i
		}
	}
	return "", -1
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
