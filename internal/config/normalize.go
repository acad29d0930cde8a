package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAuth()
	c.normalizeWorkers()
	c.normalizeProviders()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("DB_CONNECTION"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DatabasePath = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockPath) == "" {
		c.Paths.LockPath = defaultLockPath
	}
	if c.Paths.LockPath, err = expandPath(c.Paths.LockPath); err != nil {
		return fmt.Errorf("paths.lock_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.MoviesDir) != "" {
		if c.Paths.MoviesDir, err = expandPath(c.Paths.MoviesDir); err != nil {
			return fmt.Errorf("paths.movies_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.ShowsDir) != "" {
		if c.Paths.ShowsDir, err = expandPath(c.Paths.ShowsDir); err != nil {
			return fmt.Errorf("paths.shows_dir: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeAuth() {
	if value, ok := os.LookupEnv("TRANSLARR_API_USER"); ok && strings.TrimSpace(value) != "" {
		c.Auth.User = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("TRANSLARR_API_PASS"); ok && strings.TrimSpace(value) != "" {
		c.Auth.Pass = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeWorkers() {
	if value, ok := envInt("MAX_PARALLEL_TRANSLATIONS"); ok {
		c.Workers.MaxParallelTranslations = value
	}
	if value, ok := envInt("MAX_CONCURRENT_JOBS"); ok {
		c.Workers.MaxConcurrentJobs = value
	}
	if c.Workers.MaxParallelTranslations <= 0 {
		c.Workers.MaxParallelTranslations = defaultParallel
	}
	if c.Workers.MaxConcurrentJobs <= 0 {
		c.Workers.MaxConcurrentJobs = defaultConcurrentJobs
	}
}

func (c *Config) normalizeProviders() {
	c.Chat.BaseURL = strings.TrimSpace(c.Chat.BaseURL)
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = defaultChatBaseURL
	}
	c.Chat.APIKey = strings.TrimSpace(c.Chat.APIKey)
	if c.Chat.APIKey == "" {
		if value, ok := os.LookupEnv("TRANSLARR_CHAT_API_KEY"); ok {
			c.Chat.APIKey = strings.TrimSpace(value)
		}
	}
	c.Chat.Model = strings.TrimSpace(c.Chat.Model)
	if c.Chat.TimeoutSeconds <= 0 {
		c.Chat.TimeoutSeconds = defaultChatTimeoutSeconds
	}

	c.Machine.BaseURL = strings.TrimSpace(c.Machine.BaseURL)
	if c.Machine.BaseURL == "" {
		c.Machine.BaseURL = defaultMachineBaseURL
	}
	c.Machine.APIKey = strings.TrimSpace(c.Machine.APIKey)
	if c.Machine.TimeoutSeconds <= 0 {
		c.Machine.TimeoutSeconds = defaultMachineTimeout
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFprobeBin = strings.TrimSpace(c.Tools.FFprobeBin)
	if c.Tools.FFprobeBin == "" {
		c.Tools.FFprobeBin = defaultFFprobeBin
	}
	c.Tools.FFmpegBin = strings.TrimSpace(c.Tools.FFmpegBin)
	if c.Tools.FFmpegBin == "" {
		c.Tools.FFmpegBin = defaultFFmpegBin
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envInt(name string) (int, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return n, true
}
