// Package integrity validates translated subtitle files against their source
// before they are allowed to stay on disk.
package integrity

import (
	"fmt"
	"os"

	"translarr/internal/subtitle"
)

// DefaultMinRatio is the minimum target/source cue-count ratio.
const DefaultMinRatio = 0.5

// Failure reasons, stable across logs and request history.
const (
	ReasonSourceUnreadable = "IntegrityFailed:source_unreadable"
	ReasonTargetUnreadable = "IntegrityFailed:target_unreadable"
	ReasonCueCount         = "IntegrityFailed:cue_count"
	ReasonDrawings         = "IntegrityFailed:drawings"
	ReasonTiming           = "IntegrityFailed:timing"
)

// Validator checks a translated target file against its source.
type Validator struct {
	// MinRatio is the minimum fraction of source cues the target must keep.
	MinRatio float64
}

// NewValidator returns a validator with the default ratio.
func NewValidator() *Validator {
	return &Validator{MinRatio: DefaultMinRatio}
}

// ValidateFiles reads and validates both paths. It returns false with a
// stable reason string on the first failed check.
func (v *Validator) ValidateFiles(sourcePath, targetPath string) (bool, string) {
	sourceData, err := os.ReadFile(sourcePath)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", ReasonSourceUnreadable, err)
	}
	source, err := subtitle.Parse(sourceData)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", ReasonSourceUnreadable, err)
	}
	targetData, err := os.ReadFile(targetPath)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", ReasonTargetUnreadable, err)
	}
	target, err := subtitle.Parse(targetData)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", ReasonTargetUnreadable, err)
	}
	return v.Validate(source, target)
}

// Validate runs the structural checks on already parsed documents.
func (v *Validator) Validate(source, target *subtitle.Document) (bool, string) {
	ratio := v.MinRatio
	if ratio <= 0 {
		ratio = DefaultMinRatio
	}
	sourceCount := source.CueCount()
	targetCount := target.CueCount()
	if sourceCount > 0 && float64(targetCount) < ratio*float64(sourceCount) {
		return false, fmt.Sprintf("%s: target has %d cues, source %d (min ratio %.2f)",
			ReasonCueCount, targetCount, sourceCount, ratio)
	}

	cues := target.Cues()
	for _, cue := range cues {
		text := subtitle.RemoveMarkup(cue.Text)
		if text == "" {
			continue
		}
		if subtitle.IsDrawingCommand(text) {
			return false, fmt.Sprintf("%s: cue %d looks like a vector drawing", ReasonDrawings, cue.Position)
		}
	}

	for i, cue := range cues {
		if cue.End < cue.Start {
			return false, fmt.Sprintf("%s: cue %d ends before it starts", ReasonTiming, cue.Position)
		}
		if i > 0 && cue.Start < cues[i-1].Start {
			return false, fmt.Sprintf("%s: cue %d starts before cue %d", ReasonTiming, cue.Position, cues[i-1].Position)
		}
	}
	return true, ""
}
