package settings

// Setting keys recognized by the daemon, grouped by effect.
const (
	// Automation.
	KeyAutomationEnabled   = "automation_enabled"
	KeyTranslationSchedule = "translation_schedule"
	KeyMaxTranslationsRun  = "max_translations_per_run"
	KeyTranslationCycle    = "translation_cycle"
	KeyMovieSchedule       = "movie_schedule"
	KeyShowSchedule        = "show_schedule"
	KeyMovieAgeThreshold   = "movie_age_threshold"
	KeyShowAgeThreshold    = "show_age_threshold"

	// Translation.
	KeyServiceType             = "service_type"
	KeyMaxParallelTranslations = "max_parallel_translations"
	KeySourceLanguages         = "source_languages"
	KeyTargetLanguages         = "target_languages"
	KeyAIPrompt                = "ai_prompt"
	KeyCustomAIParameters      = "custom_ai_parameters"
	KeyAIContextPromptEnabled  = "ai_context_prompt_enabled"
	KeyAIContextPrompt         = "ai_context_prompt"
	KeyFixOverlapping          = "fix_overlapping_subtitles"
	KeyStripFormatting         = "strip_subtitle_formatting"
	KeyAddTranslatorInfo       = "add_translator_info"
	KeyUseBatchTranslation     = "use_batch_translation"
	KeyMaxBatchSize            = "max_batch_size"
	KeyUseSubtitleTagging      = "use_subtitle_tagging"
	KeyRemoveLanguageTag       = "remove_language_tag"
	KeySubtitleTag             = "subtitle_tag"
	KeyIgnoreCaptions          = "ignore_captions"
	KeyRequestTimeout          = "request_timeout"
	KeyMaxRetries              = "max_retries"
	KeyRetryDelay              = "retry_delay"
	KeyRetryDelayMultiplier    = "retry_delay_multiplier"
	KeyEnableBatchFallback     = "enable_batch_fallback"
	KeyMaxBatchSplitAttempts   = "max_batch_split_attempts"
	KeyCleanSourceASSDrawings  = "clean_source_ass_drawings"
	KeyBatchRetryMode          = "batch_retry_mode"
	KeyRepairContextRadius     = "repair_context_radius"
	KeyRepairMaxRetries        = "repair_max_retries"
	KeyLanguageSettingsVersion = "language_settings_version"
	KeyBatchContextEnabled     = "batch_context_enabled"
	KeyBatchContextBefore      = "batch_context_before"
	KeyBatchContextAfter       = "batch_context_after"

	// Validation.
	KeyValidationMinRatio  = "subtitle_validation_min_ratio"
	KeyIntegrityValidation = "subtitle_integrity_validation_enabled"

	// Extraction.
	KeyExtractionMode = "subtitle_extraction_mode"

	// Provider usage gate.
	KeyPlanRequestsPerDay     = "plan_requests_per_day"
	KeyOverrideRequestsPerDay = "override_requests_per_day"
	KeyRequestBuffer          = "request_buffer"
)

// Extraction modes.
const (
	ExtractOnDemand         = "on_demand"
	ExtractSpecificLanguage = "specific_language"
	ExtractAll              = "extract_all"
)

// Batch retry modes.
const (
	RetryModeImmediate = "immediate"
	RetryModeDeferred  = "deferred"
)

// defaults holds the value used when a key is unset.
var defaults = map[string]string{
	KeyAutomationEnabled:   "false",
	KeyTranslationSchedule: "0 */4 * * *",
	KeyMaxTranslationsRun:  "10",
	KeyTranslationCycle:    "false",
	KeyMovieSchedule:       "0 1 * * *",
	KeyShowSchedule:        "0 2 * * *",
	KeyMovieAgeThreshold:   "0",
	KeyShowAgeThreshold:    "0",

	KeyServiceType:             "chat",
	KeyMaxParallelTranslations: "1",
	KeySourceLanguages:         "en",
	KeyTargetLanguages:         "",
	KeyAIPrompt:                "",
	KeyCustomAIParameters:      "",
	KeyAIContextPromptEnabled:  "false",
	KeyAIContextPrompt:         "",
	KeyFixOverlapping:          "false",
	KeyStripFormatting:         "false",
	KeyAddTranslatorInfo:       "false",
	KeyUseBatchTranslation:     "true",
	KeyMaxBatchSize:            "50",
	KeyUseSubtitleTagging:      "false",
	KeyRemoveLanguageTag:       "false",
	KeySubtitleTag:             "translated",
	KeyIgnoreCaptions:          "false",
	KeyRequestTimeout:          "1800",
	KeyMaxRetries:              "3",
	KeyRetryDelay:              "2",
	KeyRetryDelayMultiplier:    "2",
	KeyEnableBatchFallback:     "true",
	KeyMaxBatchSplitAttempts:   "3",
	KeyCleanSourceASSDrawings:  "false",
	KeyBatchRetryMode:          RetryModeDeferred,
	KeyRepairContextRadius:     "2",
	KeyRepairMaxRetries:        "2",
	KeyLanguageSettingsVersion: "0",
	KeyBatchContextEnabled:     "false",
	KeyBatchContextBefore:      "2",
	KeyBatchContextAfter:       "2",

	KeyValidationMinRatio:  "0.5",
	KeyIntegrityValidation: "true",

	KeyExtractionMode: ExtractOnDemand,

	KeyPlanRequestsPerDay:     "0",
	KeyOverrideRequestsPerDay: "0",
	KeyRequestBuffer:          "0",
}

// KnownKey reports whether key is one the daemon recognizes.
func KnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// AffectsMediaState reports whether changing key invalidates the derived
// per-media translation states.
func AffectsMediaState(key string) bool {
	switch key {
	case KeySourceLanguages, KeyTargetLanguages, KeyIgnoreCaptions:
		return true
	}
	return false
}
