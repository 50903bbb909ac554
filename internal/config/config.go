// Package config loads the service's tunables from an optional YAML
// file. The pipeline tunables, the listen address and the Redis address
// can additionally be overridden by environment variables (see
// applyEnvOverrides); the tick pause and the client-facing fields come
// from the YAML file or the defaults only.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the single source of truth for every tunable the service reads.
type Config struct {
	PipelineAbandonedDefinitionDeletedAfterMin int    `yaml:"pipeline_abandoned_definition_deleted_after_min"`
	PipelineResultExpiredAfterMin              int    `yaml:"pipeline_result_expired_after_min"`
	PipelineResultDeletedAfterMin              int    `yaml:"pipeline_result_deleted_after_min"`
	MaxStatisticsAgeDays                       *int   `yaml:"max_statistics_age_days"`
	MaxFileSizeUploadLimitBytes                *int64 `yaml:"max_file_size_upload_limit_bytes"`
	MaxCacheSizeBytes                          *int64 `yaml:"max_cache_size_bytes"`
	PipelineRunsCacheDir                       string `yaml:"pipeline_runs_cache_dir"`
	RestartBackgroundWorkerOnExceptionNTimes   int    `yaml:"restart_background_worker_on_exception_n_times"`
	MaxPipelineRunsPerHourPerIP                int    `yaml:"max_pipeline_runs_per_hour_per_ip"`
	TickPauseSeconds                           int    `yaml:"tick_pause_seconds"`

	ListenAddr string `yaml:"listen_addr"`

	RedisAddr string `yaml:"redis_addr"` // empty means use the in-process MemStore

	ClientContactEmail        string     `yaml:"client_contact_email"`
	ClientBugReportEmail      string     `yaml:"client_bug_report_email"`
	ClientEntryText           string     `yaml:"client_entry_text"`
	ClientTermsAndConditions  string     `yaml:"client_terms_and_conditions"`
	ClientLinkList            []LinkItem `yaml:"client_link_list"`
}

// LinkItem is one entry of the client-facing reference link list
// returned by GET /info-links.
type LinkItem struct {
	Title string `yaml:"title" json:"title"`
	Link  string `yaml:"link" json:"link"`
}

// Default returns the out-of-the-box tunable values.
func Default() Config {
	return Config{
		PipelineAbandonedDefinitionDeletedAfterMin: 240,
		PipelineResultExpiredAfterMin:              1440,
		PipelineResultDeletedAfterMin:              1440,
		PipelineRunsCacheDir:                       "/tmp/mekewe_cache",
		RestartBackgroundWorkerOnExceptionNTimes:   3,
		MaxPipelineRunsPerHourPerIP:                5,
		TickPauseSeconds:                           1,
		ListenAddr:                                 ":8282",
		ClientEntryText:                            "I am the entry text. You can configure me via the config key client_entry_text.",
		ClientTermsAndConditions:                   "We are not responsible for the content uploaded by users. Uploaded files are processed and deleted as quickly as possible.",
	}
}

// Load reads yamlPath (if non-empty and present) over the defaults, then
// applies environment variable overrides: file beats defaults, env beats
// file.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		b, err := os.ReadFile(yamlPath)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", yamlPath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", yamlPath, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("PIPELINE_ABANDONED_DEFINITION_DELETED_AFTER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_ABANDONED_DEFINITION_DELETED_AFTER: %w", err)
		}
		cfg.PipelineAbandonedDefinitionDeletedAfterMin = n
	}
	if v, ok := os.LookupEnv("PIPELINE_RESULT_EXPIRED_AFTER_MIN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_RESULT_EXPIRED_AFTER_MIN: %w", err)
		}
		cfg.PipelineResultExpiredAfterMin = n
	}
	if v, ok := os.LookupEnv("PIPELINE_RESULT_DELETED_AFTER_MIN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PIPELINE_RESULT_DELETED_AFTER_MIN: %w", err)
		}
		cfg.PipelineResultDeletedAfterMin = n
	}
	if v, ok := os.LookupEnv("MAX_STATISTICS_AGE_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_STATISTICS_AGE_DAYS: %w", err)
		}
		cfg.MaxStatisticsAgeDays = &n
	}
	if v, ok := os.LookupEnv("MAX_FILE_SIZE_UPLOAD_LIMIT_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE_UPLOAD_LIMIT_BYTES: %w", err)
		}
		cfg.MaxFileSizeUploadLimitBytes = &n
	}
	if v, ok := os.LookupEnv("MAX_CACHE_SIZE_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_CACHE_SIZE_BYTES: %w", err)
		}
		cfg.MaxCacheSizeBytes = &n
	}
	if v, ok := os.LookupEnv("PIPELINE_RUNS_CACHE_DIR"); ok {
		cfg.PipelineRunsCacheDir = v
	}
	if v, ok := os.LookupEnv("RESTART_BACKGROUND_WORKER_ON_EXCEPTION_N_TIMES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RESTART_BACKGROUND_WORKER_ON_EXCEPTION_N_TIMES: %w", err)
		}
		cfg.RestartBackgroundWorkerOnExceptionNTimes = n
	}
	if v, ok := os.LookupEnv("MAX_PIPELINE_RUNS_PER_HOUR_PER_IP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_PIPELINE_RUNS_PER_HOUR_PER_IP: %w", err)
		}
		cfg.MaxPipelineRunsPerHourPerIP = n
	}
	if v, ok := os.LookupEnv("MEKEWESERVER_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("MEKEWESERVER_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	return nil
}
