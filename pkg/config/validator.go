package config

import (
	"fmt"
	"net/url"
	"regexp"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.HardWorkerCeiling < 3 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.hard_worker_ceiling",
			Message: "must be at least 3 (one worker per stage)",
		})
	}
	if c.Pipeline.MaxQueueRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_queue_retries",
			Message: "must be positive",
		})
	}
	if c.Pipeline.QueueTimeoutMS < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.queue_timeout_ms",
			Message: "must be positive",
		})
	}
	if c.Pipeline.DrainCeilingSec <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.drain_ceiling_seconds",
			Message: "must be positive",
		})
	}

	if c.Filter.MinRawLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "filter.min_raw_length",
			Message: "must be positive",
		})
	}
	if c.Filter.MinCleanedLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "filter.min_cleaned_length",
			Message: "must be positive",
		})
	}
	if c.Filter.LanguageRatio < 0 || c.Filter.LanguageRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "filter.language_ratio",
			Message: "must be between 0 and 1",
		})
	}
	if _, err := regexp.Compile(c.Filter.LanguagePattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "filter.language_pattern",
			Message: fmt.Sprintf("invalid pattern: %v", err),
		})
	}

	switch c.Generator.Backend {
	case "template", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "generator.backend",
			Message: fmt.Sprintf("unknown backend %q, want template or ollama", c.Generator.Backend),
		})
	}
	if c.Generator.MaxPerDocument < 1 || c.Generator.MaxPerDocument > 8 {
		errors = append(errors, ValidationError{
			Field:   "generator.max_per_document",
			Message: "must be between 1 and 8",
		})
	}
	if c.Generator.Backend == "ollama" {
		if _, err := url.Parse(c.Generator.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "generator.base_url",
				Message: "invalid Ollama base URL",
			})
		}
		if c.Generator.RateLimit <= 0 {
			errors = append(errors, ValidationError{
				Field:   "generator.rate_limit",
				Message: "rate_limit must be positive",
			})
		}
	}

	if c.Output.FlushThresholdRecords < 1 {
		errors = append(errors, ValidationError{
			Field:   "output.flush_threshold_records",
			Message: "must be positive",
		})
	}
	if c.Output.FlushIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "output.flush_interval_seconds",
			Message: "must be positive",
		})
	}

	return errors
}
