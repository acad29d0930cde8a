package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleProbeJSON = `{
  "streams": [
    {"index": 2, "codec_name": "subrip", "codec_type": "subtitle",
     "disposition": {"default": 1, "forced": 0},
     "tags": {"language": "eng", "title": "English (Full)"}},
    {"index": 3, "codec_name": "hdmv_pgs_subtitle", "codec_type": "subtitle",
     "disposition": {"default": 0, "forced": 1},
     "tags": {"language": "ger"}},
    {"index": 4, "codec_name": "ass", "codec_type": "subtitle",
     "disposition": {"default": 0, "forced": 0},
     "tags": {}}
  ]
}`

func stubProber(stdout string, stderr string, err error) (*Prober, *[][]string) {
	p := New("", "")
	var calls [][]string
	p.runCommand = func(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, append([]string{bin}, args...))
		return []byte(stdout), []byte(stderr), err
	}
	return p, &calls
}

func TestSubtitleStreams(t *testing.T) {
	p, calls := stubProber(sampleProbeJSON, "", nil)
	streams, err := p.SubtitleStreams(context.Background(), "/media/movie.mkv")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(streams))
	}

	first := streams[0]
	if first.StreamIndex != 2 || first.Language != "eng" || !first.IsTextBased || !first.IsDefault {
		t.Fatalf("unexpected first stream: %+v", first)
	}
	if first.Title != "English (Full)" {
		t.Fatalf("unexpected title %q", first.Title)
	}

	pgs := streams[1]
	if pgs.IsTextBased {
		t.Fatalf("pgs stream should not be text based: %+v", pgs)
	}
	if !pgs.IsForced {
		t.Fatalf("expected forced disposition: %+v", pgs)
	}

	untagged := streams[2]
	if untagged.Language != "" {
		t.Fatalf("expected empty language for untagged stream, got %q", untagged.Language)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected a single ffprobe invocation, got %d", len(*calls))
	}
	args := (*calls)[0]
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-select_streams s") || !strings.Contains(joined, "-- /media/movie.mkv") {
		t.Fatalf("unexpected ffprobe args: %v", args)
	}
}

func TestSubtitleStreamsProbeError(t *testing.T) {
	p, _ := stubProber("", "no such file", errors.New("exit status 1"))
	_, err := p.SubtitleStreams(context.Background(), "/missing.mkv")
	if !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("stderr should be attached: %v", err)
	}
}

func TestSubtitleStreamsBadJSON(t *testing.T) {
	p, _ := stubProber("not json", "", nil)
	if _, err := p.SubtitleStreams(context.Background(), "/m.mkv"); !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
}

func TestExtractBuildsArgumentVector(t *testing.T) {
	p, calls := stubProber("", "", nil)
	stream := SubtitleStream{StreamIndex: 2, CodecName: "subrip", IsTextBased: true}
	out := filepath.Join(t.TempDir(), "movie.en.srt")
	if err := p.Extract(context.Background(), "/media/movie.mkv", stream, out); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	args := (*calls)[0]
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-map 0:2") || !strings.Contains(joined, "-c:s srt") {
		t.Fatalf("unexpected ffmpeg args: %v", args)
	}
}

func TestExtractRefusesImageCodec(t *testing.T) {
	p, _ := stubProber("", "", nil)
	stream := SubtitleStream{StreamIndex: 3, CodecName: "hdmv_pgs_subtitle"}
	err := p.Extract(context.Background(), "/m.mkv", stream, "/tmp/out.srt")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtractRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "partial.srt")

	p := New("", "")
	p.runCommand = func(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
		// Simulate ffmpeg dying after creating the output file.
		if err := os.WriteFile(out, []byte("partial"), 0o644); err != nil {
			t.Fatalf("write partial: %v", err)
		}
		return nil, []byte("decoder error"), errors.New("exit status 1")
	}

	stream := SubtitleStream{StreamIndex: 2, CodecName: "ass", IsTextBased: true}
	if err := p.Extract(context.Background(), "/m.mkv", stream, out); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial output should be removed")
	}
}

func TestSidecarExtension(t *testing.T) {
	if got := SidecarExtension("ass"); got != "ass" {
		t.Fatalf("SidecarExtension(ass) = %q", got)
	}
	if got := SidecarExtension("subrip"); got != "srt" {
		t.Fatalf("SidecarExtension(subrip) = %q", got)
	}
}
