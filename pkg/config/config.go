package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the file-level configuration. Anything not set in the file can be
// overridden through DISTILL_<SECTION>_<KEY> environment variables (e.g.
// DISTILL_GENERATOR_MODEL) and falls back to the defaults below. Worker
// counts, batch size and queue capacity are not here: those are computed at
// startup by the adaptive controller.
type Config struct {
	Pipeline struct {
		HardWorkerCeiling int     `yaml:"hard_worker_ceiling" envconfig:"HARD_WORKER_CEILING"`
		MaxQueueRetries   int     `yaml:"max_queue_retries" envconfig:"MAX_QUEUE_RETRIES"`
		QueueTimeoutMS    int     `yaml:"queue_timeout_ms" envconfig:"QUEUE_TIMEOUT_MS"`
		DrainCeilingSec   float64 `yaml:"drain_ceiling_seconds" envconfig:"DRAIN_CEILING_SECONDS"`
	} `yaml:"pipeline"`

	Filter struct {
		MinRawLength     int     `yaml:"min_raw_length" envconfig:"MIN_RAW_LENGTH"`
		MinCleanedLength int     `yaml:"min_cleaned_length" envconfig:"MIN_CLEANED_LENGTH"`
		LanguageSample   int     `yaml:"language_sample_chars" envconfig:"LANGUAGE_SAMPLE_CHARS"`
		LanguagePattern  string  `yaml:"language_pattern" envconfig:"LANGUAGE_PATTERN"`
		LanguageRatio    float64 `yaml:"language_ratio" envconfig:"LANGUAGE_RATIO"`
	} `yaml:"filter"`

	Generator struct {
		Backend        string  `yaml:"backend" envconfig:"BACKEND"` // "template" or "ollama"
		BaseURL        string  `yaml:"base_url" envconfig:"BASE_URL"`
		Model          string  `yaml:"model" envconfig:"MODEL"`
		MaxPerDocument int     `yaml:"max_per_document" envconfig:"MAX_PER_DOCUMENT"`
		RateLimit      float64 `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests per second, ollama only
	} `yaml:"generator"`

	Output struct {
		FlushThresholdRecords int     `yaml:"flush_threshold_records" envconfig:"FLUSH_THRESHOLD_RECORDS"`
		FlushIntervalSeconds  float64 `yaml:"flush_interval_seconds" envconfig:"FLUSH_INTERVAL_SECONDS"`
		MemoryBudgetBytes     int64   `yaml:"memory_budget_bytes" envconfig:"MEMORY_BUDGET_BYTES"` // 0 = derive from probe
	} `yaml:"output"`

	Logging struct {
		Level       string `yaml:"level" envconfig:"LEVEL"`
		Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
		File        string `yaml:"file" envconfig:"FILE"`
	} `yaml:"logging"`
}

// Load reads a config file, merges DISTILL_* environment variables on top and
// fills remaining zero values with defaults. An empty path probes the default
// locations; if none exists the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"distill.yaml",
			"distill.yml",
			filepath.Join(os.Getenv("HOME"), ".config/distill/config.yaml"),
			"/etc/distill/config.yaml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process("distill", &cfg); err != nil {
		return nil, fmt.Errorf("error merging environment: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.HardWorkerCeiling == 0 {
		cfg.Pipeline.HardWorkerCeiling = 64
	}
	if cfg.Pipeline.MaxQueueRetries == 0 {
		cfg.Pipeline.MaxQueueRetries = 5
	}
	if cfg.Pipeline.QueueTimeoutMS == 0 {
		cfg.Pipeline.QueueTimeoutMS = 100
	}
	if cfg.Pipeline.DrainCeilingSec == 0 {
		cfg.Pipeline.DrainCeilingSec = 30
	}

	if cfg.Filter.MinRawLength == 0 {
		cfg.Filter.MinRawLength = 200
	}
	if cfg.Filter.MinCleanedLength == 0 {
		cfg.Filter.MinCleanedLength = 100
	}
	if cfg.Filter.LanguageSample == 0 {
		cfg.Filter.LanguageSample = 400
	}
	if cfg.Filter.LanguagePattern == "" {
		cfg.Filter.LanguagePattern = `[a-záéíóúñüç]`
	}
	if cfg.Filter.LanguageRatio == 0 {
		cfg.Filter.LanguageRatio = 0.25
	}

	if cfg.Generator.Backend == "" {
		cfg.Generator.Backend = "template"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "http://localhost:11434"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "mistral"
	}
	if cfg.Generator.MaxPerDocument == 0 {
		cfg.Generator.MaxPerDocument = 4
	}
	if cfg.Generator.RateLimit == 0 {
		cfg.Generator.RateLimit = 2.0
	}

	if cfg.Output.FlushThresholdRecords == 0 {
		cfg.Output.FlushThresholdRecords = 25000
	}
	if cfg.Output.FlushIntervalSeconds == 0 {
		cfg.Output.FlushIntervalSeconds = 15
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
