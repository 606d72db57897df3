package api

import (
	"fmt"
	"sync"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/mcl"
)

// ParamStore holds the effective tuning. Updates are validated as a
// whole config before they are accepted; readers always see a
// consistent set. The running filter picks updates up at its next
// (re)construction, typically a prior reset or daemon restart.
type ParamStore struct {
	mu  sync.RWMutex
	cfg mcl.Config
}

// NewParamStore seeds the store with an initial config. The config
// must already be valid.
func NewParamStore(cfg mcl.Config) (*ParamStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("api: invalid initial config: %w", err)
	}
	return &ParamStore{cfg: cfg}, nil
}

// Current returns the effective config.
func (p *ParamStore) Current() mcl.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Update applies an overlay onto the current config. The merged
// result must validate or the store is left untouched.
func (p *ParamStore) Update(overlay *config.TuningConfig) (mcl.Config, error) {
	if err := overlay.Validate(); err != nil {
		return mcl.Config{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	merged := overlay.Apply(p.cfg)
	if err := merged.Validate(); err != nil {
		return mcl.Config{}, err
	}
	p.cfg = merged
	return merged, nil
}
