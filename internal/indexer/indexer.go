// Package indexer feeds the media tables. The external media managers are
// modeled behind the Indexer contract; the filesystem implementation scans a
// movie and a show library directory directly.
package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"translarr/internal/logging"
	"translarr/internal/store"
)

// Indexer discovers library content and upserts it into the store.
type Indexer interface {
	IndexMovies(ctx context.Context) (int, error)
	IndexShows(ctx context.Context) (int, error)
}

var videoExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {}, ".webm": {}, ".mov": {}, ".ts": {},
}

var (
	episodeRe = regexp.MustCompile(`(?i)s(\d{1,2})e(\d{1,3})`)
	seasonRe  = regexp.MustCompile(`(?i)season\s*(\d{1,3})`)
	yearRe    = regexp.MustCompile(`[.( ](19|20)\d{2}[.) ]?`)
)

// Filesystem walks library directories and upserts what it finds. Upserts
// preserve operator toggles on existing rows, so re-indexing is idempotent.
type Filesystem struct {
	store     *store.Store
	moviesDir string
	showsDir  string
	logger    *slog.Logger
	scanWidth int
}

// NewFilesystem builds a filesystem indexer. Empty directories disable the
// corresponding index pass.
func NewFilesystem(st *store.Store, moviesDir, showsDir string, logger *slog.Logger) *Filesystem {
	return &Filesystem{
		store:     st,
		moviesDir: moviesDir,
		showsDir:  showsDir,
		logger:    logging.OrNop(logger).With(logging.String(logging.FieldComponent, "indexer")),
		scanWidth: 4,
	}
}

// IndexMovies scans the movie library. Every video file becomes one movie
// row keyed by its library-relative path.
func (f *Filesystem) IndexMovies(ctx context.Context) (int, error) {
	if f.moviesDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(f.moviesDir)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(f.scanWidth)
	counts := make([]int, len(entries))
	for i, entry := range entries {
		g.Go(func() error {
			n, err := f.indexMovieEntry(ctx, entry)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	f.logger.Info("movie index pass done", logging.Int("indexed", total))
	return total, nil
}

func (f *Filesystem) indexMovieEntry(ctx context.Context, entry fs.DirEntry) (int, error) {
	root := filepath.Join(f.moviesDir, entry.Name())
	if !entry.IsDir() {
		if !isVideo(entry.Name()) {
			return 0, nil
		}
		return 1, f.upsertMovie(ctx, root, entry.Name())
	}
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !isVideo(d.Name()) {
			return nil
		}
		if uerr := f.upsertMovie(ctx, path, entry.Name()); uerr != nil {
			return uerr
		}
		count++
		return nil
	})
	return count, err
}

func (f *Filesystem) upsertMovie(ctx context.Context, path, fallbackTitle string) error {
	rel, err := filepath.Rel(f.moviesDir, path)
	if err != nil {
		rel = path
	}
	title := cleanTitle(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if title == "" {
		title = cleanTitle(fallbackTitle)
	}
	_, err = f.store.UpsertMedia(ctx, &store.Media{
		Kind:       store.KindMovie,
		ExternalID: rel,
		Title:      title,
		Path:       path,
		FileName:   filepath.Base(path),
	})
	return err
}

// IndexShows scans the show library: one directory per show, optional
// "Season NN" directories, episode files named with SxxEyy markers.
func (f *Filesystem) IndexShows(ctx context.Context) (int, error) {
	if f.showsDir == "" {
		return 0, nil
	}
	shows, err := os.ReadDir(f.showsDir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, show := range shows {
		if !show.IsDir() {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return total, cerr
		}
		n, err := f.indexShow(ctx, show.Name())
		if err != nil {
			return total, err
		}
		total += n
	}
	f.logger.Info("show index pass done", logging.Int("indexed", total))
	return total, nil
}

func (f *Filesystem) indexShow(ctx context.Context, showDir string) (int, error) {
	showPath := filepath.Join(f.showsDir, showDir)
	showID, err := f.store.UpsertShow(ctx, showDir, cleanTitle(showDir), showPath)
	if err != nil {
		return 0, err
	}

	seasons := make(map[int]int64)
	count := 0
	err = filepath.WalkDir(showPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isVideo(d.Name()) {
			return nil
		}
		seasonNum, episodeOK := seasonOf(path, d.Name())
		if !episodeOK {
			return nil
		}
		seasonID, ok := seasons[seasonNum]
		if !ok {
			seasonID, err = f.store.UpsertSeason(ctx, showID, seasonNum)
			if err != nil {
				return err
			}
			seasons[seasonNum] = seasonID
		}
		rel, rerr := filepath.Rel(f.showsDir, path)
		if rerr != nil {
			rel = path
		}
		_, err = f.store.UpsertMedia(ctx, &store.Media{
			Kind:       store.KindEpisode,
			ExternalID: rel,
			Title:      cleanTitle(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))),
			Path:       path,
			FileName:   d.Name(),
			SeasonID:   &seasonID,
		})
		if err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// seasonOf extracts the season number from the SxxEyy marker in the file
// name, falling back to a "Season NN" parent directory.
func seasonOf(path, name string) (int, bool) {
	if m := episodeRe.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	if m := seasonRe.FindStringSubmatch(filepath.Base(filepath.Dir(path))); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func isVideo(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// cleanTitle turns release-style names into something readable: separators
// become spaces and a trailing year or quality blob is dropped.
func cleanTitle(name string) string {
	out := strings.NewReplacer(".", " ", "_", " ").Replace(name)
	if loc := yearRe.FindStringIndex(out); loc != nil && loc[0] > 0 {
		out = out[:loc[0]]
	}
	if loc := episodeRe.FindStringIndex(out); loc != nil {
		// Keep the episode marker, drop the quality tail after it.
		out = out[:loc[1]]
	}
	return strings.Join(strings.Fields(out), " ")
}
