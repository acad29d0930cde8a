package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"translarr/internal/language"
)

// ErrProbeFailed reports an ffprobe invocation or decode failure.
var ErrProbeFailed = errors.New("probe failed")

// ErrExtractionFailed reports an ffmpeg stream extraction failure.
var ErrExtractionFailed = errors.New("extraction failed")

// textBasedCodecs is the set of subtitle codec names that carry text payloads
// suitable for translation. Image codecs (pgs, dvdsub) are excluded; OCR is
// out of scope.
var textBasedCodecs = map[string]struct{}{
	"subrip": {}, "srt": {}, "ass": {}, "ssa": {}, "webvtt": {}, "mov_text": {}, "text": {},
}

// SubtitleStream describes one embedded subtitle stream of a container.
type SubtitleStream struct {
	StreamIndex int
	Language    string // ISO 639-2 3-letter code, empty when untagged
	Title       string
	CodecName   string
	IsTextBased bool
	IsDefault   bool
	IsForced    bool
}

// Prober runs ffprobe/ffmpeg with configurable binary names.
type Prober struct {
	FFprobeBin string
	FFmpegBin  string

	// runCommand allows tests to intercept subprocess execution.
	runCommand func(ctx context.Context, bin string, args ...string) ([]byte, []byte, error)
}

// New constructs a Prober; empty binary names fall back to PATH lookups of
// "ffprobe" and "ffmpeg".
func New(ffprobeBin, ffmpegBin string) *Prober {
	p := &Prober{
		FFprobeBin: strings.TrimSpace(ffprobeBin),
		FFmpegBin:  strings.TrimSpace(ffmpegBin),
	}
	if p.FFprobeBin == "" {
		p.FFprobeBin = "ffprobe"
	}
	if p.FFmpegBin == "" {
		p.FFmpegBin = "ffmpeg"
	}
	p.runCommand = runExec
	return p
}

func runExec(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Disposition map[string]int    `json:"disposition"`
	Tags        map[string]string `json:"tags"`
}

// SubtitleStreams enumerates the subtitle streams of the container at path.
func (p *Prober) SubtitleStreams(ctx context.Context, path string) ([]SubtitleStream, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrProbeFailed)
	}
	stdout, stderr, err := p.runCommand(ctx, p.FFprobeBin,
		"-v", "error", "-hide_banner",
		"-select_streams", "s",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrProbeFailed, err, strings.TrimSpace(string(stderr)))
	}

	var decoded ffprobeOutput
	if err := json.Unmarshal(stdout, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrProbeFailed, err)
	}

	streams := make([]SubtitleStream, 0, len(decoded.Streams))
	for _, raw := range decoded.Streams {
		if raw.CodecType != "" && !strings.EqualFold(raw.CodecType, "subtitle") {
			continue
		}
		codec := strings.ToLower(strings.TrimSpace(raw.CodecName))
		_, textBased := textBasedCodecs[codec]
		stream := SubtitleStream{
			StreamIndex: raw.Index,
			Language:    normalizeStreamLanguage(raw.Tags),
			Title:       strings.TrimSpace(raw.Tags["title"]),
			CodecName:   codec,
			IsTextBased: textBased,
			IsDefault:   raw.Disposition["default"] == 1,
			IsForced:    raw.Disposition["forced"] == 1,
		}
		streams = append(streams, stream)
	}
	return streams, nil
}

func normalizeStreamLanguage(tags map[string]string) string {
	for _, key := range []string{"language", "LANGUAGE", "lang"} {
		if value, ok := tags[key]; ok {
			value = strings.ToLower(strings.TrimSpace(value))
			if value == "" || value == "und" {
				continue
			}
			return language.ToISO3(value)
		}
	}
	return ""
}

// extractionFormat picks the sidecar codec/extension for an embedded codec.
func extractionFormat(codecName string) (codec, ext string) {
	switch strings.ToLower(codecName) {
	case "ass", "ssa":
		return "ass", "ass"
	default:
		return "srt", "srt"
	}
}

// SidecarExtension returns the sidecar file extension extraction would use
// for a given embedded codec name.
func SidecarExtension(codecName string) string {
	_, ext := extractionFormat(codecName)
	return ext
}

// Extract writes the subtitle stream with the given container stream index to
// outPath. The stream must be text based. On failure the partially written
// output is removed; callers only observe outPath when extraction succeeded.
func (p *Prober) Extract(ctx context.Context, mediaPath string, stream SubtitleStream, outPath string) error {
	if !stream.IsTextBased {
		return fmt.Errorf("%w: stream %d codec %q is not text based", ErrExtractionFailed, stream.StreamIndex, stream.CodecName)
	}
	codec, _ := extractionFormat(stream.CodecName)
	_, stderr, err := p.runCommand(ctx, p.FFmpegBin,
		"-v", "error", "-hide_banner", "-y",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:%d", stream.StreamIndex),
		"-c:s", codec,
		outPath,
	)
	if err != nil {
		removeIfExists(outPath)
		return fmt.Errorf("%w: stream %d: %v: %s", ErrExtractionFailed, stream.StreamIndex, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}
