// Package probe shells out to ffprobe and ffmpeg to enumerate embedded
// subtitle streams of a media container and extract one of them to a sidecar
// file. All invocations pass argument vectors, never shell strings.
package probe
