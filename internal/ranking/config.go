package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/hunchrank/internal/estimate"
)

// Calibration holds the deploy-time tunables of the ranking engine.
type Calibration struct {
	Thresholds           estimate.Thresholds `json:"thresholds"`             // hunch counts where linear and deep take over (default: 20, 100)
	RecencyWindowMinutes int                 `json:"recency_window_minutes"` // hunch collapse window (default: 60)
	Deep                 estimate.DeepConfig `json:"deep"`                   // deep estimator hyper-parameters
}

// RecencyWindow returns the collapse window as a duration.
func (c *Calibration) RecencyWindow() time.Duration {
	return time.Duration(c.RecencyWindowMinutes) * time.Minute
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version     string      `json:"version"`     // Config version for future compatibility
	Calibration Calibration `json:"calibration"` // Tunables
}

// DefaultCalibration returns the default ranking calibration.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Thresholds:           estimate.DefaultThresholds(),
		RecencyWindowMinutes: 60,
		Deep:                 estimate.DefaultDeepConfig(),
	}
}

// LoadCalibration loads ranking calibration from a JSON file.
// If the file doesn't exist or can't be parsed, returns defaults with an error.
// Partial configurations are merged with defaults.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultCalibration()
	merged := MergeCalibration(defaults, &config.Calibration)
	if err := merged.Thresholds.Validate(); err != nil {
		slog.Warn("invalid calibration thresholds, using defaults",
			"path", filePath,
			"error", err)
		return defaults, fmt.Errorf("invalid calibration file: %w", err)
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override values over base.
// Only non-zero values from the override are applied.
func MergeCalibration(base *Calibration, override *Calibration) *Calibration {
	if base == nil {
		return DefaultCalibration()
	}
	result := *base
	if override == nil {
		return &result
	}

	if override.Thresholds.Linear != 0 {
		result.Thresholds.Linear = override.Thresholds.Linear
	}
	if override.Thresholds.Deep != 0 {
		result.Thresholds.Deep = override.Thresholds.Deep
	}
	if override.RecencyWindowMinutes != 0 {
		result.RecencyWindowMinutes = override.RecencyWindowMinutes
	}
	if override.Deep.Epochs != 0 {
		result.Deep.Epochs = override.Deep.Epochs
	}
	if override.Deep.LearningRate != 0 {
		result.Deep.LearningRate = override.Deep.LearningRate
	}
	if override.Deep.Seed != 0 {
		result.Deep.Seed = override.Deep.Seed
	}
	if override.Deep.HiddenUnits != 0 {
		result.Deep.HiddenUnits = override.Deep.HiddenUnits
	}

	return &result
}

// logCalibrationOverrides logs which values were overridden from defaults.
func logCalibrationOverrides(defaults *Calibration, loaded *Calibration) {
	var overrides []string

	if loaded.Thresholds.Linear != defaults.Thresholds.Linear {
		overrides = append(overrides, fmt.Sprintf("thresholds.linear: %d -> %d",
			defaults.Thresholds.Linear, loaded.Thresholds.Linear))
	}
	if loaded.Thresholds.Deep != defaults.Thresholds.Deep {
		overrides = append(overrides, fmt.Sprintf("thresholds.deep: %d -> %d",
			defaults.Thresholds.Deep, loaded.Thresholds.Deep))
	}
	if loaded.RecencyWindowMinutes != defaults.RecencyWindowMinutes {
		overrides = append(overrides, fmt.Sprintf("recency_window_minutes: %d -> %d",
			defaults.RecencyWindowMinutes, loaded.RecencyWindowMinutes))
	}
	if loaded.Deep != defaults.Deep {
		overrides = append(overrides, fmt.Sprintf("deep: %+v -> %+v", defaults.Deep, loaded.Deep))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
