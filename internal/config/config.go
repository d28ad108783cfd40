package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/korhall/sigcast/internal/models"
	"github.com/korhall/sigcast/internal/prob"
)

// Config represents the complete application configuration.
type Config struct {
	Petition PetitionConfig `mapstructure:"petition"`
	Model    ModelConfig    `mapstructure:"model"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PetitionConfig holds the fixed facts of the petition drive: district
// thresholds, the two calendar dates, and the statewide qualification rule.
// Thresholds are set externally by statute, never derived.
type PetitionConfig struct {
	// Thresholds maps district ID (as a string key, "1".."29") to its
	// signature threshold.
	Thresholds map[string]int `mapstructure:"thresholds"`
	// Cutoff is the last day new signatures could be submitted (ISO date).
	Cutoff string `mapstructure:"cutoff"`
	// Deadline is the final clerk-review deadline (ISO date).
	Deadline string `mapstructure:"deadline"`
	// DistrictsRequired is how many districts must clear their threshold.
	DistrictsRequired int `mapstructure:"districts_required"`
	// ExpectedSnapshots is the snapshot count of a fully mature history.
	ExpectedSnapshots int `mapstructure:"expected_snapshots"`
	// ReviewWindowDays is the length of the post-cutoff clerk review.
	ReviewWindowDays int `mapstructure:"review_window_days"`
}

// ModelConfig holds the probability-model policy knobs. The prior removal
// rate, gap table, and correlation scale are conservative estimates from
// limited out-of-band data; they are configuration, not derived invariants.
type ModelConfig struct {
	Decay           float64 `mapstructure:"decay"`
	TrendSlopeGate  float64 `mapstructure:"trend_slope_gate"`
	AnomalyDropPct  float64 `mapstructure:"anomaly_drop_pct"`
	AnomalyRateBump float64 `mapstructure:"anomaly_rate_bump"`
	AnomalyRateCap  float64 `mapstructure:"anomaly_rate_cap"`
	SparklineLen    int     `mapstructure:"sparkline_len"`

	InitialBlendWeight float64 `mapstructure:"initial_blend_weight"`
	FloorBlendWeight   float64 `mapstructure:"floor_blend_weight"`
	LagWindowDays      int     `mapstructure:"lag_window_days"`
	ResolvedFraction   float64 `mapstructure:"resolved_fraction"`

	PriorRemovalRate    float64        `mapstructure:"prior_removal_rate"`
	ElevatedRemovalRate float64        `mapstructure:"elevated_removal_rate"`
	GapTable            []prob.GapBand `mapstructure:"gap_table"`
	SafeBuffer          float64        `mapstructure:"safe_buffer"`
	VelocityRef         float64        `mapstructure:"velocity_ref"`
	PipelineWindowDays  float64        `mapstructure:"pipeline_window_days"`
	PipelineMaxBoost    float64        `mapstructure:"pipeline_max_boost"`

	CorrelationScale float64 `mapstructure:"correlation_scale"`
	CertaintyScale   float64 `mapstructure:"certainty_scale"`
	SharpnessNorm    float64 `mapstructure:"sharpness_norm"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
	// NotifyDelta is the minimum absolute change in the headline
	// qualification probability that triggers a notification.
	NotifyDelta    float64       `mapstructure:"notify_delta"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds snapshot-archive and report persistence configuration.
type StorageConfig struct {
	ArchivePath string `mapstructure:"archive_path"`
	ReportPath  string `mapstructure:"report_path"`
	DataDir     string `mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("SIGCAST")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The gap table is a structured list viper cannot default cleanly;
	// fall back to the calibrated table when the file omits it.
	if len(cfg.Model.GapTable) == 0 {
		cfg.Model.GapTable = prob.DefaultGapTable()
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Statutory per-district signature thresholds.
	v.SetDefault("petition.thresholds", map[string]int{
		"1": 5238, "2": 4687, "3": 4737, "4": 5099, "5": 4115, "6": 4745,
		"7": 5294, "8": 4910, "9": 4805, "10": 2975, "11": 4890, "12": 3248,
		"13": 4088, "14": 5680, "15": 4596, "16": 4347, "17": 5368,
		"18": 5093, "19": 5715, "20": 5292, "21": 5684, "22": 5411,
		"23": 4253, "24": 3857, "25": 4929, "26": 5178, "27": 5696,
		"28": 5437, "29": 5382,
	})
	v.SetDefault("petition.cutoff", "2026-02-15")
	v.SetDefault("petition.deadline", "2026-03-07")
	v.SetDefault("petition.districts_required", 26)
	v.SetDefault("petition.expected_snapshots", 20)
	v.SetDefault("petition.review_window_days", 20)

	v.SetDefault("model.decay", 0.75)
	v.SetDefault("model.trend_slope_gate", 0.10)
	v.SetDefault("model.anomaly_drop_pct", 0.02)
	v.SetDefault("model.anomaly_rate_bump", 0.01)
	v.SetDefault("model.anomaly_rate_cap", 0.05)
	v.SetDefault("model.sparkline_len", 10)

	v.SetDefault("model.initial_blend_weight", 0.60)
	v.SetDefault("model.floor_blend_weight", 0.10)
	v.SetDefault("model.lag_window_days", 7)
	v.SetDefault("model.resolved_fraction", 0.001)

	v.SetDefault("model.prior_removal_rate", 0.02)
	v.SetDefault("model.elevated_removal_rate", 0.03)
	v.SetDefault("model.safe_buffer", 0.10)
	v.SetDefault("model.velocity_ref", 100.0)
	v.SetDefault("model.pipeline_window_days", 10.0)
	v.SetDefault("model.pipeline_max_boost", 0.50)

	v.SetDefault("model.correlation_scale", 0.03)
	v.SetDefault("model.certainty_scale", 2.0)
	v.SetDefault("model.sharpness_norm", 3.0)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.notify_delta", 0.02)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.archive_path", "./data/snapshots.json")
	v.SetDefault("storage.report_path", "./data/report.json")
	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid. A district with
// an unset or non-positive threshold is a configuration fault and must halt
// the run loudly rather than silently producing a nonsensical probability.
func (c *Config) Validate() error {
	if len(c.Petition.Thresholds) != models.TotalDistricts {
		return fmt.Errorf("petition.thresholds must cover all %d districts, got %d",
			models.TotalDistricts, len(c.Petition.Thresholds))
	}
	for d := 1; d <= models.TotalDistricts; d++ {
		threshold, ok := c.Petition.Thresholds[strconv.Itoa(d)]
		if !ok {
			return fmt.Errorf("petition.thresholds missing district %d", d)
		}
		if threshold <= 0 {
			return fmt.Errorf("petition.thresholds district %d must be positive, got %d", d, threshold)
		}
	}

	cutoff, err := c.CutoffDate()
	if err != nil {
		return fmt.Errorf("petition.cutoff: %w", err)
	}
	deadline, err := c.DeadlineDate()
	if err != nil {
		return fmt.Errorf("petition.deadline: %w", err)
	}
	if !deadline.After(cutoff) {
		return fmt.Errorf("petition.deadline %s must be after petition.cutoff %s",
			c.Petition.Deadline, c.Petition.Cutoff)
	}

	if c.Petition.DistrictsRequired < 1 || c.Petition.DistrictsRequired > models.TotalDistricts {
		return fmt.Errorf("petition.districts_required must be between 1 and %d", models.TotalDistricts)
	}
	if c.Petition.ReviewWindowDays < 1 {
		return fmt.Errorf("petition.review_window_days must be at least 1")
	}

	if c.Model.Decay <= 0.0 || c.Model.Decay >= 1.0 {
		return fmt.Errorf("model.decay must be in (0, 1)")
	}
	if c.Model.AnomalyDropPct <= 0.0 || c.Model.AnomalyDropPct > 1.0 {
		return fmt.Errorf("model.anomaly_drop_pct must be in (0, 1]")
	}
	if c.Model.InitialBlendWeight < 0.0 || c.Model.InitialBlendWeight > 1.0 {
		return fmt.Errorf("model.initial_blend_weight must be between 0.0 and 1.0")
	}
	if c.Model.LagWindowDays < 0 {
		return fmt.Errorf("model.lag_window_days must not be negative")
	}
	if c.Model.PriorRemovalRate < 0.0 || c.Model.PriorRemovalRate > 1.0 {
		return fmt.Errorf("model.prior_removal_rate must be between 0.0 and 1.0")
	}
	if c.Model.CorrelationScale < 0.0 || c.Model.CorrelationScale >= 1.0 {
		return fmt.Errorf("model.correlation_scale must be in [0, 1)")
	}
	if !prob.ValidateGapTable(c.Model.GapTable) {
		return fmt.Errorf("model.gap_table must be sorted by gap bound with non-increasing probabilities")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.ArchivePath == "" {
		return fmt.Errorf("storage.archive_path is required")
	}
	if c.Storage.ReportPath == "" {
		return fmt.Errorf("storage.report_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// CutoffDate parses the submission cutoff date.
func (c *Config) CutoffDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Petition.Cutoff)
}

// DeadlineDate parses the clerk-review deadline date.
func (c *Config) DeadlineDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Petition.Deadline)
}

// Threshold returns the signature threshold for a district, or 0 when unset.
func (c *Config) Threshold(district int) int {
	return c.Petition.Thresholds[strconv.Itoa(district)]
}

// Districts returns all configured district IDs in ascending order.
func (c *Config) Districts() []int {
	districts := make([]int, 0, models.TotalDistricts)
	for d := 1; d <= models.TotalDistricts; d++ {
		if _, ok := c.Petition.Thresholds[strconv.Itoa(d)]; ok {
			districts = append(districts, d)
		}
	}
	return districts
}
