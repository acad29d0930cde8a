package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "translarr.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertMovie(t *testing.T, s *Store, externalID string) *Media {
	t.Helper()
	m, err := s.UpsertMedia(context.Background(), &Media{
		Kind:       KindMovie,
		ExternalID: externalID,
		Title:      "Movie " + externalID,
		Path:       "/library/movies/" + externalID + "/movie.mkv",
		FileName:   "movie.mkv",
		DateAdded:  time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("upsert media: %v", err)
	}
	return m
}

func TestMediaUpsertPreservesToggles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := insertMovie(t, s, "tt100")
	if err := s.SetPriority(ctx, KindMovie, m.ID, true); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if err := s.SetExclusion(ctx, KindMovie, m.ID, true); err != nil {
		t.Fatalf("set exclusion: %v", err)
	}

	// Re-index the same library item with a new title.
	again, err := s.UpsertMedia(ctx, &Media{
		Kind: KindMovie, ExternalID: "tt100", Title: "Renamed",
		Path: m.Path, FileName: m.FileName,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != m.ID {
		t.Fatalf("upsert must keep identity, got %d vs %d", again.ID, m.ID)
	}
	if again.Title != "Renamed" {
		t.Fatalf("library facts must refresh, title %q", again.Title)
	}
	if !again.IsPriority || !again.ExcludeFromTranslation {
		t.Fatalf("user toggles must survive re-index: %+v", again)
	}
	if again.PriorityDate == nil {
		t.Fatalf("priority date must be stamped")
	}
}

func TestEpisodeHierarchy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	showID, err := s.UpsertShow(ctx, "show-1", "The Show", "/library/shows/the-show")
	if err != nil {
		t.Fatalf("upsert show: %v", err)
	}
	seasonID, err := s.UpsertSeason(ctx, showID, 2)
	if err != nil {
		t.Fatalf("upsert season: %v", err)
	}
	again, err := s.UpsertSeason(ctx, showID, 2)
	if err != nil || again != seasonID {
		t.Fatalf("season upsert not idempotent: %d vs %d (%v)", again, seasonID, err)
	}

	ep, err := s.UpsertMedia(ctx, &Media{
		Kind: KindEpisode, ExternalID: "show-1-s02e03", Title: "Episode 3",
		Path: "/library/shows/the-show/s02/e03.mkv", FileName: "e03.mkv",
		SeasonID: &seasonID,
	})
	if err != nil {
		t.Fatalf("upsert episode: %v", err)
	}
	if ep.SeasonID == nil || *ep.SeasonID != seasonID {
		t.Fatalf("episode must reference its season: %+v", ep.SeasonID)
	}
}

func TestEmbeddedSubtitleLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt200")

	tracks := []*EmbeddedSubtitle{
		{StreamIndex: 2, Language: "eng", CodecName: "subrip", IsTextBased: true, IsDefault: true},
		{StreamIndex: 3, Language: "ger", CodecName: "hdmv_pgs_subtitle"},
	}
	if err := s.ReplaceEmbeddedSubtitles(ctx, m.ID, tracks); err != nil {
		t.Fatalf("replace subtitles: %v", err)
	}
	listed, err := s.ListEmbeddedSubtitles(ctx, m.ID)
	if err != nil {
		t.Fatalf("list subtitles: %v", err)
	}
	if len(listed) != 2 || listed[0].StreamIndex != 2 || !listed[0].IsTextBased {
		t.Fatalf("unexpected tracks %+v", listed)
	}

	if err := s.MarkExtracted(ctx, listed[0].ID, "/library/movies/tt200/movie.embedded.en.srt"); err != nil {
		t.Fatalf("mark extracted: %v", err)
	}
	track, err := s.GetEmbeddedSubtitle(ctx, listed[0].ID)
	if err != nil {
		t.Fatalf("get subtitle: %v", err)
	}
	if !track.IsExtracted || track.ExtractedPath == "" {
		t.Fatalf("extraction flags must update together: %+v", track)
	}

	// A re-probe replaces the inventory.
	if err := s.ReplaceEmbeddedSubtitles(ctx, m.ID, tracks[:1]); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	listed, _ = s.ListEmbeddedSubtitles(ctx, m.ID)
	if len(listed) != 1 {
		t.Fatalf("replace must swap the full set, got %d", len(listed))
	}

	// Deleting media cascades.
	if err := s.DeleteMedia(ctx, KindMovie, m.ID); err != nil {
		t.Fatalf("delete media: %v", err)
	}
	listed, _ = s.ListEmbeddedSubtitles(ctx, m.ID)
	if len(listed) != 0 {
		t.Fatalf("subtitles must cascade on media delete, got %d", len(listed))
	}
}

func TestCreateRequestIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt300")

	req := &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	}
	first, created, err := s.CreateRequest(ctx, req)
	if err != nil || !created {
		t.Fatalf("first create: %v created=%v", err, created)
	}
	if first.Status != StatusPending || !first.IsActive() {
		t.Fatalf("new request must be pending and active: %+v", first)
	}

	second, created, err := s.CreateRequest(ctx, req)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("duplicate active tuple must no-op, got created=%v id=%d", created, second.ID)
	}

	// A different language pair is a different tuple.
	other := &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "de",
	}
	_, created, err = s.CreateRequest(ctx, other)
	if err != nil || !created {
		t.Fatalf("different tuple must create: %v created=%v", err, created)
	}

	// After the first finishes, the tuple frees up.
	if err := s.SetRequestStatus(ctx, first.ID, StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	third, created, err := s.CreateRequest(ctx, req)
	if err != nil || !created {
		t.Fatalf("re-create after completion: %v created=%v", err, created)
	}
	if third.ID == first.ID {
		t.Fatalf("expected a fresh row after completion")
	}
}

func TestRequestStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt400")

	req, _, err := s.CreateRequest(ctx, &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.SetRequestStatus(ctx, req.ID, StatusInProgress); err != nil {
		t.Fatalf("to in progress: %v", err)
	}
	if err := s.SetRequestJobID(ctx, req.ID, "job-7"); err != nil {
		t.Fatalf("set job id: %v", err)
	}
	if err := s.SetRequestStatus(ctx, req.ID, StatusCompleted); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	got, _ := s.GetRequest(ctx, req.ID)
	if got.Status != StatusCompleted || got.CompletedAt == nil || got.JobID != "job-7" {
		t.Fatalf("unexpected terminal row: %+v", got)
	}

	count, err := s.ActiveRequestCount(ctx)
	if err != nil || count != 0 {
		t.Fatalf("active count after completion: %d (%v)", count, err)
	}

	if err := s.ReactivateRequest(ctx, req.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	got, _ = s.GetRequest(ctx, req.ID)
	if got.Status != StatusPending || got.Progress != 0 || got.CompletedAt != nil || got.JobID != "" {
		t.Fatalf("reactivation must reset the row: %+v", got)
	}
}

func TestRequestProgressMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt500")
	req, _, _ := s.CreateRequest(ctx, &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	})

	if err := s.SetRequestProgress(ctx, req.ID, 40); err != nil {
		t.Fatalf("progress 40: %v", err)
	}
	if err := s.SetRequestProgress(ctx, req.ID, 25); err != nil {
		t.Fatalf("progress 25: %v", err)
	}
	got, _ := s.GetRequest(ctx, req.ID)
	if got.Progress != 40 {
		t.Fatalf("progress must never regress, got %d", got.Progress)
	}
	if err := s.SetRequestProgress(ctx, req.ID, 150); err != nil {
		t.Fatalf("progress 150: %v", err)
	}
	got, _ = s.GetRequest(ctx, req.ID)
	if got.Progress != 100 {
		t.Fatalf("progress must clamp to 100, got %d", got.Progress)
	}
}

func TestSweepInterrupted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt600")
	req, _, _ := s.CreateRequest(ctx, &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	})
	if err := s.SetRequestStatus(ctx, req.ID, StatusInProgress); err != nil {
		t.Fatalf("to in progress: %v", err)
	}

	swept, err := s.SweepInterrupted(ctx)
	if err != nil || swept != 1 {
		t.Fatalf("sweep: %d (%v)", swept, err)
	}
	got, _ := s.GetRequest(ctx, req.ID)
	if got.Status != StatusInterrupted || got.IsActive() {
		t.Fatalf("expected interrupted inactive row: %+v", got)
	}
}

func TestRequestLogsCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt700")
	req, _, _ := s.CreateRequest(ctx, &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	})

	if err := s.AppendRequestLog(ctx, req.ID, "info", "translation started", ""); err != nil {
		t.Fatalf("append log: %v", err)
	}
	if err := s.AppendRequestLog(ctx, req.ID, "error", "provider failed", "status 503"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	logs, err := s.ListRequestLogs(ctx, req.ID)
	if err != nil || len(logs) != 2 {
		t.Fatalf("list logs: %d (%v)", len(logs), err)
	}
	if logs[0].Message != "translation started" || logs[1].Details != "status 503" {
		t.Fatalf("unexpected logs %+v", logs)
	}

	if err := s.DeleteRequest(ctx, req.ID); err != nil {
		t.Fatalf("delete request: %v", err)
	}
	logs, _ = s.ListRequestLogs(ctx, req.ID)
	if len(logs) != 0 {
		t.Fatalf("logs must cascade with their request, got %d", len(logs))
	}
}

func TestListRequestsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := insertMovie(t, s, "tt8"+string(rune('0'+i)))
		if _, _, err := s.CreateRequest(ctx, &TranslationRequest{
			MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
			SourceLanguage: "en", TargetLanguage: "ro",
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, total, err := s.ListRequests(ctx, RequestListOptions{OrderBy: "id", Ascending: true, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("expected total 5 page of 2, got %d/%d", total, len(page))
	}
	if page[0].ID >= page[1].ID {
		t.Fatalf("ascending order violated: %d, %d", page[0].ID, page[1].ID)
	}

	filtered, total, err := s.ListRequests(ctx, RequestListOptions{SearchQuery: "tt82"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(filtered) != 1 {
		t.Fatalf("expected one search hit, got %d", total)
	}
}

func TestDedupeRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := insertMovie(t, s, "tt900")

	req := &TranslationRequest{
		MediaID: m.ID, MediaKind: KindMovie, Title: m.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		row, _, err := s.CreateRequest(ctx, req)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if err := s.SetRequestStatus(ctx, row.ID, StatusCompleted); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
		if err := s.AppendRequestLog(ctx, row.ID, "info", "attempt", ""); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
		ids = append(ids, row.ID)
	}
	active, _, err := s.CreateRequest(ctx, req)
	if err != nil {
		t.Fatalf("create active: %v", err)
	}

	removed, err := s.DedupeRequests(ctx)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 duplicates removed, got %d", removed)
	}
	// The lowest id survives and inherits the duplicates' audit trail.
	kept, _ := s.GetRequest(ctx, ids[0])
	if kept == nil {
		t.Fatalf("lowest id must survive dedupe")
	}
	logs, err := s.ListRequestLogs(ctx, ids[0])
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 rewired log lines, got %d", len(logs))
	}
	got, _ := s.GetRequest(ctx, active.ID)
	if got == nil || !got.IsActive() {
		t.Fatalf("dedupe must never touch active rows")
	}
}

func TestMediaNeedingTranslation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldMovie := insertMovie(t, s, "tt1000")
	if err := s.SetTranslationState(ctx, KindMovie, oldMovie.ID, StatePending, 1); err != nil {
		t.Fatalf("set state: %v", err)
	}
	priorityMovie := insertMovie(t, s, "tt1001")
	_ = s.SetTranslationState(ctx, KindMovie, priorityMovie.ID, StateStale, 1)
	_ = s.SetPriority(ctx, KindMovie, priorityMovie.ID, true)

	fresh, err := s.UpsertMedia(ctx, &Media{
		Kind: KindMovie, ExternalID: "tt1002", Title: "Fresh",
		Path: "/library/movies/tt1002/movie.mkv", FileName: "movie.mkv",
		DateAdded: time.Now(),
	})
	if err != nil {
		t.Fatalf("upsert fresh: %v", err)
	}
	_ = s.SetTranslationState(ctx, KindMovie, fresh.ID, StatePending, 1)

	excluded := insertMovie(t, s, "tt1003")
	_ = s.SetTranslationState(ctx, KindMovie, excluded.ID, StatePending, 1)
	_ = s.SetExclusion(ctx, KindMovie, excluded.ID, true)

	busy := insertMovie(t, s, "tt1004")
	_ = s.SetTranslationState(ctx, KindMovie, busy.ID, StatePending, 1)
	if _, _, err := s.CreateRequest(ctx, &TranslationRequest{
		MediaID: busy.ID, MediaKind: KindMovie, Title: busy.Title,
		SourceLanguage: "en", TargetLanguage: "ro",
	}); err != nil {
		t.Fatalf("create busy request: %v", err)
	}

	thresholds := map[MediaKind]int{KindMovie: 24, KindEpisode: 24}
	rows, err := s.MediaNeedingTranslation(ctx, 10, true, thresholds)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ExternalID
		}
		t.Fatalf("expected the two eligible movies, got %v", ids)
	}
	if rows[0].ID != priorityMovie.ID {
		t.Fatalf("priority row must sort first, got %s", rows[0].ExternalID)
	}

	// Per-media override admits the fresh movie immediately.
	zero := 0
	if err := s.SetAgeThreshold(ctx, KindMovie, fresh.ID, &zero); err != nil {
		t.Fatalf("set age threshold: %v", err)
	}
	rows, err = s.MediaNeedingTranslation(ctx, 10, false, thresholds)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected override to admit fresh movie, got %d rows", len(rows))
	}
}

func TestMarkAllStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	done := insertMovie(t, s, "tt1100")
	_ = s.SetTranslationState(ctx, KindMovie, done.ID, StateComplete, 1)
	running := insertMovie(t, s, "tt1101")
	_ = s.SetTranslationState(ctx, KindMovie, running.ID, StateInProgress, 1)
	parked := insertMovie(t, s, "tt1102")
	_ = s.SetTranslationState(ctx, KindMovie, parked.ID, StateNotApplicable, 1)
	waiting := insertMovie(t, s, "tt1103")
	_ = s.SetTranslationState(ctx, KindMovie, waiting.ID, StateAwaitingSource, 1)

	changed, err := s.MarkAllStale(ctx, 2)
	if err != nil || changed != 3 {
		t.Fatalf("mark all stale: %d (%v)", changed, err)
	}
	for _, id := range []int64{done.ID, parked.ID, waiting.ID} {
		got, _ := s.GetMedia(ctx, KindMovie, id)
		if got.TranslationState != StateStale || got.StateSettingsVersion != 2 {
			t.Fatalf("media %d must be stale at version 2: %+v", id, got)
		}
	}
	got, _ := s.GetMedia(ctx, KindMovie, running.ID)
	if got.TranslationState != StateInProgress {
		t.Fatalf("in-flight media must not be preempted: %s", got.TranslationState)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, ok, err := s.GetSetting(ctx, "service_name"); err != nil || ok {
		t.Fatalf("unset key: ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "service_name", "openai"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetSetting(ctx, "service_name", "libretranslate"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := s.GetSetting(ctx, "service_name")
	if err != nil || !ok || value != "libretranslate" {
		t.Fatalf("get: %q ok=%v err=%v", value, ok, err)
	}
	all, err := s.AllSettings(ctx)
	if err != nil || all["service_name"] != "libretranslate" {
		t.Fatalf("all settings: %v (%v)", all, err)
	}
}

func TestSchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "translarr.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE schema_version SET version = 99`); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = s.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
