// Package config loads filter tuning from JSON files. The schema
// matches the /api/params endpoint so the same document works for
// startup configuration and runtime updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pose.report/internal/mcl"
)

// TuningConfig overrides filter defaults. All fields are pointers so
// a partial JSON document only touches the parameters it names.
type TuningConfig struct {
	NumParticles *int `json:"num_particles,omitempty"`

	// Motion model params
	TransSigma *float64 `json:"trans_sigma,omitempty"`
	RotSigma   *float64 `json:"rot_sigma,omitempty"`
	SlipScale  *float64 `json:"slip_scale,omitempty"`

	// Beam model params
	RangeSigma  *float64 `json:"range_sigma,omitempty"`
	ZHit        *float64 `json:"z_hit,omitempty"`
	ZShort      *float64 `json:"z_short,omitempty"`
	ZMax        *float64 `json:"z_max,omitempty"`
	ZRand       *float64 `json:"z_rand,omitempty"`
	MaxRange    *float64 `json:"max_range,omitempty"`
	ShortLambda *float64 `json:"short_lambda,omitempty"`
	BeamStride  *int     `json:"beam_stride,omitempty"`

	// Resampling params
	ESSFraction        *float64 `json:"ess_fraction,omitempty"`
	JitterXYSigma      *float64 `json:"jitter_xy_sigma,omitempty"`
	JitterHeadingSigma *float64 `json:"jitter_heading_sigma,omitempty"`

	// Runtime params
	Workers            *int    `json:"workers,omitempty"`
	Seed               *uint64 `json:"seed,omitempty"`
	ControlQueue       *int    `json:"control_queue,omitempty"`
	ScanQueue          *int    `json:"scan_queue,omitempty"`
	ReestimateInterval *string `json:"reestimate_interval,omitempty"` // duration string like "500ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields
// omitted from the file stay nil, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

// Validate checks the overrides that have their own constraints
// beyond what mcl.Config.Validate covers after application.
func (c *TuningConfig) Validate() error {
	if c.ReestimateInterval != nil && *c.ReestimateInterval != "" {
		if _, err := time.ParseDuration(*c.ReestimateInterval); err != nil {
			return fmt.Errorf("invalid reestimate_interval %q: %w", *c.ReestimateInterval, err)
		}
	}
	return nil
}

// Apply returns base with every set field overridden. The result
// still goes through mcl.Config.Validate at filter construction.
func (c *TuningConfig) Apply(base mcl.Config) mcl.Config {
	out := base

	if c.NumParticles != nil {
		out.NumParticles = *c.NumParticles
	}

	if c.TransSigma != nil {
		out.Motion.TransSigma = *c.TransSigma
	}
	if c.RotSigma != nil {
		out.Motion.RotSigma = *c.RotSigma
	}
	if c.SlipScale != nil {
		out.Motion.SlipScale = *c.SlipScale
	}

	if c.RangeSigma != nil {
		out.Beam.RangeSigma = *c.RangeSigma
	}
	if c.ZHit != nil {
		out.Beam.ZHit = *c.ZHit
	}
	if c.ZShort != nil {
		out.Beam.ZShort = *c.ZShort
	}
	if c.ZMax != nil {
		out.Beam.ZMax = *c.ZMax
	}
	if c.ZRand != nil {
		out.Beam.ZRand = *c.ZRand
	}
	if c.MaxRange != nil {
		out.Beam.MaxRange = *c.MaxRange
	}
	if c.ShortLambda != nil {
		out.Beam.ShortLambda = *c.ShortLambda
	}
	if c.BeamStride != nil {
		out.Beam.BeamStride = *c.BeamStride
	}

	if c.ESSFraction != nil {
		out.ESSFraction = *c.ESSFraction
	}
	if c.JitterXYSigma != nil {
		out.Jitter.XYSigma = *c.JitterXYSigma
	}
	if c.JitterHeadingSigma != nil {
		out.Jitter.HeadingSigma = *c.JitterHeadingSigma
	}

	if c.Workers != nil {
		out.Workers = *c.Workers
	}
	if c.Seed != nil {
		out.Seed = *c.Seed
	}
	if c.ControlQueue != nil {
		out.ControlQueue = *c.ControlQueue
	}
	if c.ScanQueue != nil {
		out.ScanQueue = *c.ScanQueue
	}
	if c.ReestimateInterval != nil && *c.ReestimateInterval != "" {
		d, err := time.ParseDuration(*c.ReestimateInterval)
		if err == nil {
			out.ReestimateInterval = d
		}
	}

	return out
}

// FromConfig snapshots a full mcl.Config as a TuningConfig with every
// field set, for serving current parameters over the API.
func FromConfig(cfg mcl.Config) *TuningConfig {
	interval := cfg.ReestimateInterval.String()
	return &TuningConfig{
		NumParticles:       ptrInt(cfg.NumParticles),
		TransSigma:         ptrFloat64(cfg.Motion.TransSigma),
		RotSigma:           ptrFloat64(cfg.Motion.RotSigma),
		SlipScale:          ptrFloat64(cfg.Motion.SlipScale),
		RangeSigma:         ptrFloat64(cfg.Beam.RangeSigma),
		ZHit:               ptrFloat64(cfg.Beam.ZHit),
		ZShort:             ptrFloat64(cfg.Beam.ZShort),
		ZMax:               ptrFloat64(cfg.Beam.ZMax),
		ZRand:              ptrFloat64(cfg.Beam.ZRand),
		MaxRange:           ptrFloat64(cfg.Beam.MaxRange),
		ShortLambda:        ptrFloat64(cfg.Beam.ShortLambda),
		BeamStride:         ptrInt(cfg.Beam.BeamStride),
		ESSFraction:        ptrFloat64(cfg.ESSFraction),
		JitterXYSigma:      ptrFloat64(cfg.Jitter.XYSigma),
		JitterHeadingSigma: ptrFloat64(cfg.Jitter.HeadingSigma),
		Workers:            ptrInt(cfg.Workers),
		Seed:               ptrUint64(cfg.Seed),
		ControlQueue:       ptrInt(cfg.ControlQueue),
		ScanQueue:          ptrInt(cfg.ScanQueue),
		ReestimateInterval: ptrString(interval),
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }
func ptrString(v string) *string    { return &v }
