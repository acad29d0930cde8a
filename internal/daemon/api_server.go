package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"translarr/internal/api"
	"translarr/internal/config"
	"translarr/internal/integrity"
	"translarr/internal/logging"
	"translarr/internal/requests"
	"translarr/internal/settings"
	"translarr/internal/store"
)

const sseHeartbeatInterval = 15 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/usage", srv.handleUsage)
	mux.HandleFunc("/api/settings", srv.handleSettings)
	mux.HandleFunc("/api/requests", srv.handleRequests)
	mux.HandleFunc("/api/requests/", srv.handleRequestItem)
	mux.HandleFunc("/api/media", srv.handleMedia)
	mux.HandleFunc("/api/media/", srv.handleMediaItem)
	mux.HandleFunc("/api/integrity/check", srv.handleIntegrityCheck)
	mux.HandleFunc("/api/integrity/sweep", srv.handleIntegritySweep)
	mux.HandleFunc("/api/logs", srv.handleLogs)
	mux.HandleFunc("/api/logs/stream", srv.handleLogStream)
	mux.HandleFunc("/api/test-translation/start", srv.handleTestTranslation)

	// WriteTimeout stays zero so the SSE streams are not cut mid-flight.
	srv.server = &http.Server{
		Handler:           basicAuth(cfg.Auth.User, cfg.Auth.Pass, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address once start succeeded. Test hook.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:        status.Running,
		DatabasePath:   status.DatabasePath,
		LockPath:       status.LockPath,
		WorkerLimit:    status.WorkerLimit,
		ActiveWorkers:  status.ActiveWorkers,
		ActiveRequests: status.ActiveRequests,
		Usage:          usageResponse(status),
	})
}

func usageResponse(status Status) api.UsageResponse {
	return api.UsageResponse{
		RequestsUsed: status.Usage.RequestsUsed,
		Allowed:      status.Usage.Allowed,
		Paused:       status.Usage.Paused,
		ResetAt:      status.Usage.ResetAt,
	}
}

func (s *apiServer) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snapshot := s.daemon.gate.Snapshot()
	s.writeJSON(w, http.StatusOK, api.UsageResponse{
		RequestsUsed: snapshot.RequestsUsed,
		Allowed:      snapshot.Allowed,
		Paused:       snapshot.Paused,
		ResetAt:      snapshot.ResetAt,
	})
}

func (s *apiServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.daemon.settings.All(r.Context()))
	case http.MethodPut, http.MethodPost:
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid settings body")
			return
		}
		for key := range values {
			if !settings.KnownKey(key) {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown setting %q", key))
				return
			}
		}
		for key, value := range values {
			if err := s.daemon.settings.Set(r.Context(), key, value); err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		s.writeJSON(w, http.StatusOK, s.daemon.settings.All(r.Context()))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		page, _ := strconv.Atoi(query.Get("page"))
		pageSize, _ := strconv.Atoi(query.Get("pageSize"))
		opts := store.RequestListOptions{
			SearchQuery: strings.TrimSpace(query.Get("search")),
			OrderBy:     strings.TrimSpace(query.Get("orderBy")),
			Ascending:   query.Get("ascending") == "1" || strings.EqualFold(query.Get("ascending"), "true"),
			Page:        page,
			PageSize:    pageSize,
		}
		rows, total, err := s.daemon.requests.List(r.Context(), opts)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.RequestListResponse{
			Requests: api.FromRequests(rows),
			Total:    total,
		})
	case http.MethodPost:
		var in api.CreateRequestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kind := store.MediaKind(in.MediaKind)
		if !store.ValidKind(kind) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid media kind %q", in.MediaKind))
			return
		}
		created, isNew, err := s.daemon.requests.Create(r.Context(), requests.CreateInput{
			MediaKind:      kind,
			MediaID:        in.MediaID,
			SourceLanguage: in.SourceLanguage,
			TargetLanguage: in.TargetLanguage,
			SubtitlePath:   in.SubtitlePath,
			ForcePriority:  in.ForcePriority,
		})
		if err != nil {
			s.writeError(w, requestErrorStatus(err), err.Error())
			return
		}
		code := http.StatusOK
		if isNew {
			code = http.StatusCreated
		}
		s.writeJSON(w, code, api.CreateRequestResponse{
			Request: api.FromRequest(created),
			Created: isNew,
		})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleRequestItem(w http.ResponseWriter, r *http.Request) {
	suffix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/requests/"), "/")
	switch suffix {
	case "":
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	case "active-count":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		count, err := s.daemon.requests.ActiveCount(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.ActiveCountResponse{Count: count})
		return
	case "reenqueue":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var in api.ReenqueueInput
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&in)
		}
		reenqueued, skipped, err := s.daemon.requests.ReenqueueQueued(r.Context(), in.IncludeInProgress)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.ReenqueueResponse{Reenqueued: reenqueued, Skipped: skipped})
		return
	case "dedupe":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		removed, err := s.daemon.requests.Dedupe(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.DedupeResponse{Removed: removed})
		return
	}

	idPart, action, _ := strings.Cut(suffix, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			req, err := s.daemon.requests.Get(r.Context(), id)
			if err != nil {
				s.writeError(w, requestErrorStatus(err), err.Error())
				return
			}
			s.writeJSON(w, http.StatusOK, api.RequestResponse{Request: api.FromRequest(req)})
		case http.MethodDelete:
			if err := s.daemon.requests.Remove(r.Context(), id); err != nil {
				s.writeError(w, requestErrorStatus(err), err.Error())
				return
			}
			s.writeJSON(w, http.StatusOK, nil)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "logs":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		logs, err := s.daemon.requests.Logs(r.Context(), id)
		if err != nil {
			s.writeError(w, requestErrorStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.RequestLogsResponse{Logs: api.FromRequestLogs(logs)})
	case "cancel":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		req, err := s.daemon.requests.Cancel(r.Context(), id)
		if err != nil {
			s.writeError(w, requestErrorStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.RequestResponse{Request: api.FromRequest(req)})
	case "retry":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		req, err := s.daemon.requests.Retry(r.Context(), id)
		if err != nil {
			s.writeError(w, requestErrorStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.RequestResponse{Request: api.FromRequest(req)})
	case "events":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.streamRequestEvents(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown request action")
	}
}

func requestErrorStatus(err error) int {
	switch {
	case errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, requests.ErrRequestInFlight), errors.Is(err, requests.ErrRequestStillHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	kind := store.MediaKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind != "" && !store.ValidKind(kind) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid media kind %q", kind))
		return
	}
	rows, err := s.daemon.store.ListMedia(r.Context(), kind)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.MediaListResponse{Items: api.FromMediaList(rows)})
}

func (s *apiServer) handleMediaItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	suffix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/media/"), "/")
	parts := strings.Split(suffix, "/")
	if len(parts) != 3 {
		s.writeError(w, http.StatusNotFound, "unknown media action")
		return
	}
	kind := store.MediaKind(parts[0])
	if !store.ValidKind(kind) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid media kind %q", parts[0]))
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	switch parts[2] {
	case "exclude":
		var in api.MediaToggleInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := s.daemon.store.SetExclusion(r.Context(), kind, id, in.Value); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case "priority":
		var in api.MediaToggleInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := s.daemon.store.SetPriority(r.Context(), kind, id, in.Value); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// A flip takes effect for requests already waiting on a slot.
		s.daemon.requests.RefreshPriorityForMedia(kind, id)
	case "threshold":
		var in api.MediaThresholdInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if in.Hours != nil && *in.Hours < 0 {
			s.writeError(w, http.StatusBadRequest, "threshold hours must not be negative")
			return
		}
		if err := s.daemon.store.SetAgeThreshold(r.Context(), kind, id, in.Hours); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	default:
		s.writeError(w, http.StatusNotFound, "unknown media action")
		return
	}

	media, err := s.daemon.store.GetMedia(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "media not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMedia(media))
}

func (s *apiServer) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in api.IntegrityCheckInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if in.SourcePath == "" || in.TargetPath == "" {
		s.writeError(w, http.StatusBadRequest, "sourcePath and targetPath are required")
		return
	}
	validator := integrity.NewValidator()
	if ratio := s.daemon.settings.Float(r.Context(), settings.KeyValidationMinRatio); ratio > 0 {
		validator.MinRatio = ratio
	}
	valid, reason := validator.ValidateFiles(in.SourcePath, in.TargetPath)
	s.writeJSON(w, http.StatusOK, api.IntegrityCheckResponse{Valid: valid, Reason: reason})
}

func (s *apiServer) handleIntegritySweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.daemon.sched.IntegritySweep(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.IntegritySweepResponse{Removed: removed})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		var fetchErr error
		events, next, fetchErr = hub.Fetch(r.Context(), since, limit, follow)
		if fetchErr != nil && !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, fetchErr.Error())
			return
		}
	}

	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{
		Events: convertLogEvents(events),
		Next:   next,
	})
}

func convertLogEvents(events []logging.LogEvent) []api.LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]api.LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, api.LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: evt.Timestamp,
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			RequestID: evt.RequestID,
			Fields:    evt.Fields,
		})
	}
	return out
}

// handleLogStream serves the log buffer as server-sent events: a recent
// backlog first, then live events, with periodic heartbeats to keep proxies
// from closing the connection.
func (s *apiServer) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.hub
	flusher, ok := w.(http.Flusher)
	if hub == nil || !ok {
		s.writeError(w, http.StatusNotImplemented, "log streaming unavailable")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	backlog, cursor := hub.Tail(limit)
	for _, evt := range backlog {
		if !writeSSE(w, convertLogEvent(evt)) {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	fetched := make(chan []logging.LogEvent)
	fetchCtx, cancelFetch := context.WithCancel(r.Context())
	defer cancelFetch()
	go func() {
		defer close(fetched)
		for {
			events, next, err := hub.Fetch(fetchCtx, cursor, limit, true)
			if err != nil {
				return
			}
			cursor = next
			select {
			case fetched <- events:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case events, open := <-fetched:
			if !open {
				return
			}
			for _, evt := range events {
				if !writeSSE(w, convertLogEvent(evt)) {
					return
				}
			}
			flusher.Flush()
		}
	}
}

func convertLogEvent(evt logging.LogEvent) api.LogEvent {
	return api.LogEvent{
		Sequence:  evt.Sequence,
		Timestamp: evt.Timestamp,
		Level:     evt.Level,
		Message:   evt.Message,
		Component: evt.Component,
		RequestID: evt.RequestID,
		Fields:    evt.Fields,
	}
}

// streamRequestEvents serves one request's progress notifications as SSE
// until the request reaches a terminal status or the client disconnects.
func (s *apiServer) streamRequestEvents(w http.ResponseWriter, r *http.Request, id int64) {
	flusher, ok := w.(http.Flusher)
	hub := s.daemon.requests.Hub()
	if hub == nil || !ok {
		s.writeError(w, http.StatusNotImplemented, "event streaming unavailable")
		return
	}
	req, err := s.daemon.requests.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, requestErrorStatus(err), err.Error())
		return
	}

	events, unsubscribe := hub.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// Current state first so late subscribers see where the request stands.
	writeSSE(w, api.ProgressEvent{
		RequestID: req.ID,
		Status:    string(req.Status),
		Progress:  req.Progress,
		Timestamp: api.FormatTime(time.Now()),
	})
	flusher.Flush()
	if !req.IsActive() {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt := <-events:
			writeSSE(w, api.ProgressEvent{
				RequestID: evt.RequestID,
				Status:    string(evt.Status),
				Progress:  evt.Progress,
				Message:   evt.Message,
				Timestamp: api.FormatTime(evt.Timestamp),
			})
			flusher.Flush()
			if !store.IsActiveStatus(evt.Status) {
				return
			}
		}
	}
}

// handleTestTranslation runs a single line through the configured provider
// and streams the stages as SSE. Used by the dashboard's settings check.
func (s *apiServer) handleTestTranslation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusNotImplemented, "event streaming unavailable")
		return
	}

	query := r.URL.Query()
	line := strings.TrimSpace(query.Get("line"))
	if line == "" {
		line = "Hello, how are you today?"
	}
	source := strings.TrimSpace(query.Get("source"))
	target := strings.TrimSpace(query.Get("target"))
	if source == "" {
		if langs := s.daemon.settings.Languages(r.Context(), settings.KeySourceLanguages); len(langs) > 0 {
			source = langs[0]
		}
	}
	if target == "" {
		if langs := s.daemon.settings.Languages(r.Context(), settings.KeyTargetLanguages); len(langs) > 0 {
			target = langs[0]
		}
	}
	if source == "" || target == "" {
		s.writeError(w, http.StatusBadRequest, "source and target languages are required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, api.TestTranslationEvent{Stage: "started", Line: line})
	flusher.Flush()

	provider, err := s.daemon.providerFactory()(r.Context())
	if err != nil {
		writeSSE(w, api.TestTranslationEvent{Stage: "error", Error: err.Error()})
		flusher.Flush()
		return
	}
	result, err := provider.TranslateSingle(r.Context(), line, source, target)
	if err != nil {
		writeSSE(w, api.TestTranslationEvent{Stage: "error", Error: err.Error()})
		flusher.Flush()
		return
	}
	writeSSE(w, api.TestTranslationEvent{Stage: "result", Line: line, Result: result})
	flusher.Flush()
}

// writeSSE emits one data frame. Returns false when the client is gone.
func writeSSE(w http.ResponseWriter, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err == nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
