package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks the normalized configuration for values the daemon cannot
// run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		problems = append(problems, "paths.database_path must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		problems = append(problems, fmt.Sprintf("paths.api_bind %q is not host:port", c.Paths.APIBind))
	}
	if c.Workers.MaxParallelTranslations < 1 || c.Workers.MaxParallelTranslations > 20 {
		problems = append(problems, "workers.max_parallel_translations must be in [1, 20]")
	}
	if c.Workers.MaxConcurrentJobs < 1 {
		problems = append(problems, "workers.max_concurrent_jobs must be at least 1")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}
	if !strings.HasPrefix(c.Chat.BaseURL, "http://") && !strings.HasPrefix(c.Chat.BaseURL, "https://") {
		problems = append(problems, "chat.base_url must be an http(s) URL")
	}
	if !strings.HasPrefix(c.Machine.BaseURL, "http://") && !strings.HasPrefix(c.Machine.BaseURL, "https://") {
		problems = append(problems, "machine.base_url must be an http(s) URL")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
