package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the tunable parameters of the identification engine.
// All fields are pointers so a partial JSON file overlays the defaults;
// the Get* accessors return the hard default for any unset field. The
// schema matches the /api/config endpoint so the same JSON can be used
// for startup configuration and runtime inspection.
type TuningConfig struct {
	// View cone params
	MaxScanDistanceM *float64 `json:"max_scan_distance_m,omitempty"`
	ConeHalfAngleDeg *float64 `json:"cone_half_angle_deg,omitempty"`
	ConeArcSteps     *int     `json:"cone_arc_steps,omitempty"`

	// Candidate retry params
	RetryAttempts    *int     `json:"retry_attempts,omitempty"`
	RetryWidenFactor *float64 `json:"retry_widen_factor,omitempty"`

	// Scoring params
	DistanceDecayM    *float64 `json:"distance_decay_m,omitempty"`
	HeightCap         *float64 `json:"height_cap,omitempty"`
	PitchThresholdDeg *float64 `json:"pitch_threshold_deg,omitempty"`
	HeightWeightHigh  *float64 `json:"height_weight_high,omitempty"`

	// Classifier params
	AmbiguityScoreGap *float64 `json:"ambiguity_score_gap,omitempty"`
	CloseDistanceM    *float64 `json:"close_distance_m,omitempty"`

	// Disambiguation params
	VisualTopK          *int    `json:"visual_top_k,omitempty"`
	ImageryFetchTimeout *string `json:"imagery_fetch_timeout,omitempty"` // duration string like "1500ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxScanDistanceM != nil && *c.MaxScanDistanceM <= 0 {
		return fmt.Errorf("max_scan_distance_m must be positive, got %f", *c.MaxScanDistanceM)
	}
	if c.ConeHalfAngleDeg != nil {
		if *c.ConeHalfAngleDeg <= 0 || *c.ConeHalfAngleDeg >= 90 {
			return fmt.Errorf("cone_half_angle_deg must be in (0, 90), got %f", *c.ConeHalfAngleDeg)
		}
	}
	if c.ConeArcSteps != nil && *c.ConeArcSteps < 12 {
		return fmt.Errorf("cone_arc_steps must be at least 12, got %d", *c.ConeArcSteps)
	}
	if c.RetryAttempts != nil && *c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be non-negative, got %d", *c.RetryAttempts)
	}
	if c.RetryWidenFactor != nil && *c.RetryWidenFactor <= 1 {
		return fmt.Errorf("retry_widen_factor must be greater than 1, got %f", *c.RetryWidenFactor)
	}
	if c.AmbiguityScoreGap != nil && *c.AmbiguityScoreGap < 0 {
		return fmt.Errorf("ambiguity_score_gap must be non-negative, got %f", *c.AmbiguityScoreGap)
	}
	if c.VisualTopK != nil {
		if *c.VisualTopK < 2 || *c.VisualTopK > 5 {
			return fmt.Errorf("visual_top_k must be between 2 and 5, got %d", *c.VisualTopK)
		}
	}
	if c.HeightWeightHigh != nil {
		if *c.HeightWeightHigh <= 0 || *c.HeightWeightHigh >= 1 {
			return fmt.Errorf("height_weight_high must be in (0, 1), got %f", *c.HeightWeightHigh)
		}
	}
	if c.ImageryFetchTimeout != nil && *c.ImageryFetchTimeout != "" {
		if _, err := time.ParseDuration(*c.ImageryFetchTimeout); err != nil {
			return fmt.Errorf("invalid imagery_fetch_timeout '%s': %w", *c.ImageryFetchTimeout, err)
		}
	}
	return nil
}

// GetMaxScanDistanceM returns the max_scan_distance_m value or the default.
func (c *TuningConfig) GetMaxScanDistanceM() float64 {
	if c.MaxScanDistanceM == nil {
		return 100.0
	}
	return *c.MaxScanDistanceM
}

// GetConeHalfAngleDeg returns the cone_half_angle_deg value or the default.
func (c *TuningConfig) GetConeHalfAngleDeg() float64 {
	if c.ConeHalfAngleDeg == nil {
		return 30.0
	}
	return *c.ConeHalfAngleDeg
}

// GetConeArcSteps returns the cone_arc_steps value or the default.
func (c *TuningConfig) GetConeArcSteps() int {
	if c.ConeArcSteps == nil {
		return 16
	}
	return *c.ConeArcSteps
}

// GetRetryAttempts returns the retry_attempts value or the default.
func (c *TuningConfig) GetRetryAttempts() int {
	if c.RetryAttempts == nil {
		return 2
	}
	return *c.RetryAttempts
}

// GetRetryWidenFactor returns the retry_widen_factor value or the default.
func (c *TuningConfig) GetRetryWidenFactor() float64 {
	if c.RetryWidenFactor == nil {
		return 1.5
	}
	return *c.RetryWidenFactor
}

// GetDistanceDecayM returns the distance_decay_m value or the default.
func (c *TuningConfig) GetDistanceDecayM() float64 {
	if c.DistanceDecayM == nil {
		return 30.0
	}
	return *c.DistanceDecayM
}

// GetHeightCap returns the height_cap value or the default.
func (c *TuningConfig) GetHeightCap() float64 {
	if c.HeightCap == nil {
		return 200.0
	}
	return *c.HeightCap
}

// GetPitchThresholdDeg returns the pitch_threshold_deg value or the default.
func (c *TuningConfig) GetPitchThresholdDeg() float64 {
	if c.PitchThresholdDeg == nil {
		return 30.0
	}
	return *c.PitchThresholdDeg
}

// GetHeightWeightHigh returns the height_weight_high value or the default.
func (c *TuningConfig) GetHeightWeightHigh() float64 {
	if c.HeightWeightHigh == nil {
		return 0.25
	}
	return *c.HeightWeightHigh
}

// GetAmbiguityScoreGap returns the ambiguity_score_gap value or the default.
func (c *TuningConfig) GetAmbiguityScoreGap() float64 {
	if c.AmbiguityScoreGap == nil {
		return 15.0
	}
	return *c.AmbiguityScoreGap
}

// GetCloseDistanceM returns the close_distance_m value or the default.
func (c *TuningConfig) GetCloseDistanceM() float64 {
	if c.CloseDistanceM == nil {
		return 50.0
	}
	return *c.CloseDistanceM
}

// GetVisualTopK returns the visual_top_k value or the default.
func (c *TuningConfig) GetVisualTopK() int {
	if c.VisualTopK == nil {
		return 3
	}
	return *c.VisualTopK
}

// GetImageryFetchTimeout parses and returns the ImageryFetchTimeout as a time.Duration.
func (c *TuningConfig) GetImageryFetchTimeout() time.Duration {
	if c.ImageryFetchTimeout == nil || *c.ImageryFetchTimeout == "" {
		return 1500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ImageryFetchTimeout)
	if err != nil {
		return 1500 * time.Millisecond // default on parse error
	}
	return d
}
