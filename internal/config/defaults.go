package config

const (
	defaultDatabasePath       = "~/.local/share/translarr/translarr.db"
	defaultLockPath           = "~/.local/share/translarr/translarr.lock"
	defaultAPIBind            = "127.0.0.1:9876"
	defaultAPIUser            = "admin"
	defaultAPIPass            = "translarr"
	defaultParallel           = 1
	defaultConcurrentJobs     = 4
	defaultChatBaseURL        = "https://api.openai.com/v1"
	defaultChatModel          = "gpt-4o-mini"
	defaultChatTimeoutSeconds = 120
	defaultMachineBaseURL     = "http://localhost:5000"
	defaultMachineTimeout     = 30
	defaultFFprobeBin         = "ffprobe"
	defaultFFmpegBin          = "ffmpeg"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatabasePath: defaultDatabasePath,
			LockPath:     defaultLockPath,
			APIBind:      defaultAPIBind,
		},
		Auth: Auth{
			User: defaultAPIUser,
			Pass: defaultAPIPass,
		},
		Workers: Workers{
			MaxParallelTranslations: defaultParallel,
			MaxConcurrentJobs:       defaultConcurrentJobs,
		},
		Chat: Chat{
			BaseURL:        defaultChatBaseURL,
			Model:          defaultChatModel,
			TimeoutSeconds: defaultChatTimeoutSeconds,
		},
		Machine: Machine{
			BaseURL:        defaultMachineBaseURL,
			TimeoutSeconds: defaultMachineTimeout,
		},
		Tools: Tools{
			FFprobeBin: defaultFFprobeBin,
			FFmpegBin:  defaultFFmpegBin,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
