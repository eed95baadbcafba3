package leadership

import (
	"fmt"
	"time"
)

// MaxLeaders is the number of category slots in every result.
const MaxLeaders = 5

// DefaultAlternatePaths are the well-known paths re-tried on an alternate pass.
var DefaultAlternatePaths = []string{"/about-us", "/about", "/team", "/leadership", "/management", "/our-team"}

// EngineConfig is the immutable per-run configuration handed to the controller.
type EngineConfig struct {
	Enabled             bool
	MaxRetries          int
	RetryDelayMin       time.Duration
	RetryDelayMax       time.Duration
	AlternatePaths      []string
	MaxLeaders          int
	ConfidenceThreshold float64
	MaxPages            int
	MaxDepth            int
	PerPageTimeout      time.Duration
	PerCompanyTimeout   time.Duration
	CacheTTL            time.Duration
	UseAgent            bool
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Enabled:             true,
		MaxRetries:          3,
		RetryDelayMin:       2 * time.Second,
		RetryDelayMax:       5 * time.Second,
		AlternatePaths:      append([]string(nil), DefaultAlternatePaths...),
		MaxLeaders:          MaxLeaders,
		ConfidenceThreshold: 0.4,
		MaxPages:            15,
		MaxDepth:            2,
		PerPageTimeout:      20 * time.Second,
		PerCompanyTimeout:   180 * time.Second,
		CacheTTL:            72 * time.Hour,
		UseAgent:            true,
	}
}

// Validate checks the ranges the controller relies on.
func (c EngineConfig) Validate() error {
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be > 0")
	}
	if c.RetryDelayMin < 0 || c.RetryDelayMax < c.RetryDelayMin {
		return fmt.Errorf("retry delay window [%s, %s] is invalid", c.RetryDelayMin, c.RetryDelayMax)
	}
	if c.MaxLeaders < 1 || c.MaxLeaders > MaxLeaders {
		return fmt.Errorf("max_leaders must be within [1, %d]", MaxLeaders)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0, 1]")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0")
	}
	if c.PerPageTimeout <= 0 || c.PerCompanyTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0")
	}
	return nil
}
