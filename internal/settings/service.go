// Package settings exposes the keyed configuration surface backed by the
// store's settings table, with a read-through cache and in-process change
// subscribers.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"translarr/internal/language"
	"translarr/internal/logging"
)

const (
	cacheSlidingTTL  = 30 * time.Minute
	cacheAbsoluteTTL = time.Hour
)

// Backend is the persistence slice the service needs.
type Backend interface {
	AllSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Subscriber receives the key that changed.
type Subscriber func(key string)

// Service is the read-through settings cache. Reads hit the store at most
// once per sliding window; any write invalidates.
type Service struct {
	backend Backend
	logger  *slog.Logger

	mu          sync.Mutex
	cache       map[string]string
	loadedAt    time.Time
	lastAccess  time.Time
	subscribers map[int]Subscriber
	nextSubID   int

	now func() time.Time
}

// NewService builds the settings service.
func NewService(backend Backend, logger *slog.Logger) *Service {
	return &Service{
		backend:     backend,
		logger:      logging.OrNop(logger).With(logging.String(logging.FieldComponent, "settings")),
		subscribers: make(map[int]Subscriber),
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Service) snapshot(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	fresh := s.cache != nil &&
		now.Sub(s.loadedAt) < cacheAbsoluteTTL &&
		now.Sub(s.lastAccess) < cacheSlidingTTL
	if !fresh {
		values, err := s.backend.AllSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		s.cache = values
		s.loadedAt = now
	}
	s.lastAccess = now
	return s.cache, nil
}

// Get returns the value for key, falling back to the built-in default.
func (s *Service) Get(ctx context.Context, key string) string {
	values, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warn("settings read failed, using default", logging.String("key", key), logging.Error(err))
		return defaults[key]
	}
	if value, ok := values[key]; ok {
		return value
	}
	return defaults[key]
}

// Set persists a value, invalidates the cache, and notifies subscribers.
// Changing a key that feeds media state derivation also bumps the language
// settings version.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if key == KeySourceLanguages || key == KeyTargetLanguages {
		if err := validateLanguageList(value); err != nil {
			return err
		}
	}
	if err := s.backend.SetSetting(ctx, key, value); err != nil {
		return err
	}
	if AffectsMediaState(key) {
		version := s.LanguageSettingsVersion(ctx) + 1
		if err := s.backend.SetSetting(ctx, KeyLanguageSettingsVersion, strconv.FormatInt(version, 10)); err != nil {
			return fmt.Errorf("bump language settings version: %w", err)
		}
		s.logger.Info("language settings version bumped", logging.Int64("version", version))
	}

	s.mu.Lock()
	s.cache = nil
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(key)
	}
	return nil
}

// Subscribe registers a change callback and returns its removal func.
func (s *Service) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func validateLanguageList(value string) error {
	codes := splitList(value)
	if err := language.Validate(codes); err != nil {
		return fmt.Errorf("invalid language list %q: %w", value, err)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Bool reads a boolean setting.
func (s *Service) Bool(ctx context.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(s.Get(ctx, key)))
	if err != nil {
		value, _ = strconv.ParseBool(defaults[key])
	}
	return value
}

// Int reads an integer setting.
func (s *Service) Int(ctx context.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(s.Get(ctx, key)))
	if err != nil {
		value, _ = strconv.Atoi(defaults[key])
	}
	return value
}

// Float reads a float setting.
func (s *Service) Float(ctx context.Context, key string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(s.Get(ctx, key)), 64)
	if err != nil {
		value, _ = strconv.ParseFloat(defaults[key], 64)
	}
	return value
}

// Seconds reads a setting expressed in whole seconds.
func (s *Service) Seconds(ctx context.Context, key string) time.Duration {
	return time.Duration(s.Int(ctx, key)) * time.Second
}

// Languages reads a comma-separated language list, normalized to two-letter
// codes with duplicates removed.
func (s *Service) Languages(ctx context.Context, key string) []string {
	return language.NormalizeList(splitList(s.Get(ctx, key)))
}

// LanguageSettingsVersion returns the integer version of the language
// configuration.
func (s *Service) LanguageSettingsVersion(ctx context.Context) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(s.Get(ctx, KeyLanguageSettingsVersion)), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// All returns every known setting with stored overrides applied over the
// built-in defaults.
func (s *Service) All(ctx context.Context) map[string]string {
	out := make(map[string]string, len(defaults))
	for key, value := range defaults {
		out[key] = value
	}
	values, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warn("settings read failed, serving defaults", logging.Error(err))
		return out
	}
	for key, value := range values {
		out[key] = value
	}
	return out
}
