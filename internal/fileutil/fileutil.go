package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic writes data to path by staging it under a sibling temporary
// name and renaming on success. The temporary file is removed on any failure
// so partial output is never visible to readers of the directory.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// SidecarPath builds the sidecar subtitle path for a media file, language
// code, and optional tag: <media>.<tag>.<lang>.<ext> or <media>.<lang>.<ext>.
func SidecarPath(mediaPath, tag, lang, ext string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	parts := []string{base}
	if strings.TrimSpace(tag) != "" {
		parts = append(parts, strings.TrimSpace(tag))
	}
	parts = append(parts, lang, strings.TrimPrefix(ext, "."))
	return strings.Join(parts, ".")
}

// SidecarInfo describes a parsed sidecar subtitle filename.
type SidecarInfo struct {
	MediaBase string
	Tag       string
	Language  string
	Ext       string
}

// ParseSidecar splits a sidecar filename into its media base, optional tag,
// language code, and extension. It returns false when the name does not look
// like a sidecar (no language segment before the extension).
func ParseSidecar(name string) (SidecarInfo, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return SidecarInfo{}, false
	}
	rest := strings.TrimSuffix(name, ext)
	langIdx := strings.LastIndex(rest, ".")
	if langIdx <= 0 {
		return SidecarInfo{}, false
	}
	lang := rest[langIdx+1:]
	if len(lang) < 2 || len(lang) > 3 {
		return SidecarInfo{}, false
	}
	base := rest[:langIdx]
	info := SidecarInfo{MediaBase: base, Language: strings.ToLower(lang), Ext: strings.TrimPrefix(ext, ".")}
	if tagIdx := strings.LastIndex(base, "."); tagIdx > 0 {
		info.Tag = base[tagIdx+1:]
		info.MediaBase = base[:tagIdx]
	}
	return info, true
}

// Exists reports whether path exists as a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
