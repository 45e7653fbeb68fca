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

// TuningConfig represents the root configuration for tuning parameters.
// Every field is optional; the Get* accessors fall back to the reference
// defaults when a field is absent.
type TuningConfig struct {
	// Foreground thresholds
	MinDepth   *int `json:"min_depth,omitempty"` // millimetres
	MaxDepth   *int `json:"max_depth,omitempty"` // millimetres
	MinIR      *int `json:"min_ir,omitempty"`
	MaxIR      *int `json:"max_ir,omitempty"`
	CutoffArea *int `json:"cutoff_area,omitempty"`

	// Disk plausibility band for mean depth * radius
	DepthRadiusMin *float64 `json:"depth_radius_min,omitempty"`
	DepthRadiusMax *float64 `json:"depth_radius_max,omitempty"`

	// Detector params
	ROIMargin       *int  `json:"roi_margin,omitempty"` // pixels around the previous markers
	UseWorldSpace   *bool `json:"use_world_space,omitempty"`
	EnableAlgorithm *bool `json:"enable_algorithm,omitempty"`
	EstimateNormals *bool `json:"estimate_normals,omitempty"`

	// Tracker params
	GraceFrames      *int       `json:"grace_frames,omitempty"`
	SentinelPosition *[3]float64 `json:"sentinel_position,omitempty"`

	// Replay params
	ReplayInterval *string `json:"replay_interval,omitempty"` // duration string like "100ms"

	// Point cloud params
	PointCloudSpacing  *int `json:"point_cloud_spacing,omitempty"`
	PointCloudBorder   *int `json:"point_cloud_border,omitempty"`
	PointCloudMinDepth *int `json:"point_cloud_min_depth,omitempty"`
	PointCloudMaxDepth *int `json:"point_cloud_max_depth,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/optical/l2labels/
		"../../../../" + DefaultConfigPath,    // from internal/optical/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
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
	if err := checkUint16("min_depth", c.MinDepth); err != nil {
		return err
	}
	if err := checkUint16("max_depth", c.MaxDepth); err != nil {
		return err
	}
	if err := checkUint16("min_ir", c.MinIR); err != nil {
		return err
	}
	if err := checkUint16("max_ir", c.MaxIR); err != nil {
		return err
	}
	if c.GetMinDepth() > c.GetMaxDepth() {
		return fmt.Errorf("min_depth %d exceeds max_depth %d", c.GetMinDepth(), c.GetMaxDepth())
	}
	if c.GetMinIR() > c.GetMaxIR() {
		return fmt.Errorf("min_ir %d exceeds max_ir %d", c.GetMinIR(), c.GetMaxIR())
	}

	if c.CutoffArea != nil && *c.CutoffArea < 0 {
		return fmt.Errorf("cutoff_area must be non-negative, got %d", *c.CutoffArea)
	}
	if c.GetDepthRadiusMin() >= c.GetDepthRadiusMax() {
		return fmt.Errorf("depth_radius_min %g must be below depth_radius_max %g", c.GetDepthRadiusMin(), c.GetDepthRadiusMax())
	}
	if c.ROIMargin != nil && *c.ROIMargin < 0 {
		return fmt.Errorf("roi_margin must be non-negative, got %d", *c.ROIMargin)
	}
	if c.GraceFrames != nil && *c.GraceFrames < 0 {
		return fmt.Errorf("grace_frames must be non-negative, got %d", *c.GraceFrames)
	}

	// Validate ReplayInterval can be parsed if set
	if c.ReplayInterval != nil && *c.ReplayInterval != "" {
		d, err := time.ParseDuration(*c.ReplayInterval)
		if err != nil {
			return fmt.Errorf("invalid replay_interval '%s': %w", *c.ReplayInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("replay_interval must be non-negative, got %s", d)
		}
	}

	if c.PointCloudSpacing != nil && *c.PointCloudSpacing < 1 {
		return fmt.Errorf("point_cloud_spacing must be at least 1, got %d", *c.PointCloudSpacing)
	}
	if c.PointCloudBorder != nil && *c.PointCloudBorder < 0 {
		return fmt.Errorf("point_cloud_border must be non-negative, got %d", *c.PointCloudBorder)
	}
	if err := checkUint16("point_cloud_min_depth", c.PointCloudMinDepth); err != nil {
		return err
	}
	if err := checkUint16("point_cloud_max_depth", c.PointCloudMaxDepth); err != nil {
		return err
	}

	return nil
}

func checkUint16(name string, v *int) error {
	if v != nil && (*v < 0 || *v > 65535) {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", name, *v)
	}
	return nil
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat64(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// GetMinDepth returns the min_depth value or the default.
func (c *TuningConfig) GetMinDepth() int { return getInt(c.MinDepth, 40) }

// GetMaxDepth returns the max_depth value or the default.
func (c *TuningConfig) GetMaxDepth() int { return getInt(c.MaxDepth, 3000) }

// GetMinIR returns the min_ir value or the default.
func (c *TuningConfig) GetMinIR() int { return getInt(c.MinIR, 750) }

// GetMaxIR returns the max_ir value or the default.
func (c *TuningConfig) GetMaxIR() int { return getInt(c.MaxIR, 9000) }

// GetCutoffArea returns the cutoff_area value or the default.
func (c *TuningConfig) GetCutoffArea() int { return getInt(c.CutoffArea, 6) }

// GetDepthRadiusMin returns the depth_radius_min value or the default.
func (c *TuningConfig) GetDepthRadiusMin() float64 { return getFloat64(c.DepthRadiusMin, 1500) }

// GetDepthRadiusMax returns the depth_radius_max value or the default.
func (c *TuningConfig) GetDepthRadiusMax() float64 { return getFloat64(c.DepthRadiusMax, 3300) }

// GetROIMargin returns the roi_margin value or the default.
func (c *TuningConfig) GetROIMargin() int { return getInt(c.ROIMargin, 64) }

// GetUseWorldSpace returns the use_world_space value or the default.
func (c *TuningConfig) GetUseWorldSpace() bool { return getBool(c.UseWorldSpace, true) }

// GetEnableAlgorithm returns the enable_algorithm value or the default.
func (c *TuningConfig) GetEnableAlgorithm() bool { return getBool(c.EnableAlgorithm, true) }

// GetEstimateNormals returns the estimate_normals value or the default.
func (c *TuningConfig) GetEstimateNormals() bool { return getBool(c.EstimateNormals, true) }

// GetGraceFrames returns the grace_frames value or the default.
func (c *TuningConfig) GetGraceFrames() int { return getInt(c.GraceFrames, 1) }

// GetSentinelPosition returns the sentinel_position value or the default.
func (c *TuningConfig) GetSentinelPosition() [3]float64 {
	if c.SentinelPosition == nil {
		return [3]float64{-9999, -9999, -9999}
	}
	return *c.SentinelPosition
}

// GetReplayInterval parses and returns the ReplayInterval as a time.Duration.
func (c *TuningConfig) GetReplayInterval() time.Duration {
	if c.ReplayInterval == nil || *c.ReplayInterval == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ReplayInterval)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetPointCloudSpacing returns the point_cloud_spacing value or the default.
func (c *TuningConfig) GetPointCloudSpacing() int { return getInt(c.PointCloudSpacing, 3) }

// GetPointCloudBorder returns the point_cloud_border value or the default.
func (c *TuningConfig) GetPointCloudBorder() int { return getInt(c.PointCloudBorder, 16) }

// GetPointCloudMinDepth returns the point_cloud_min_depth value or the default.
func (c *TuningConfig) GetPointCloudMinDepth() int { return getInt(c.PointCloudMinDepth, 100) }

// GetPointCloudMaxDepth returns the point_cloud_max_depth value or the default.
func (c *TuningConfig) GetPointCloudMaxDepth() int { return getInt(c.PointCloudMaxDepth, 4000) }
