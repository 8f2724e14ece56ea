package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"leaf-disease-service/internal/core/domain"
	"leaf-disease-service/internal/core/ports/output"
)

type ModelState string

const (
	ModelStateReady       ModelState = "ready"
	ModelStateLoading     ModelState = "loading"
	ModelStateUnavailable ModelState = "unavailable"
	ModelStateNotLoaded   ModelState = "not_loaded"
	ModelStateDisabled    ModelState = "disabled"
)

type ModelStatus struct {
	Mode     domain.PredictionMode  `json:"mode"`
	State    ModelState             `json:"state"`
	Artifact *domain.ArtifactStatus `json:"artifact,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ModelProvider is the application's single owner of the configured model.
// Get initializes it on first use and returns the memoized handle afterwards.
type ModelProvider struct {
	cache *ArtifactCache
	spec  domain.ArtifactSpec

	inflight atomic.Int32

	mu      sync.RWMutex
	lastErr error
}

func NewModelProvider(cache *ArtifactCache, spec domain.ArtifactSpec) *ModelProvider {
	return &ModelProvider{cache: cache, spec: spec}
}

func (p *ModelProvider) Spec() domain.ArtifactSpec {
	return p.spec
}

// Get returns the loaded model. Failures are wrapped in ErrModelUnavailable
// and leave the provider usable for a later attempt.
func (p *ModelProvider) Get(ctx context.Context) (ports.Model, error) {
	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	model, err := p.cache.Ensure(ctx, p.spec)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// The caller left. The population it joined may still succeed.
		return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}
	return model, nil
}

func (p *ModelProvider) Status() ModelStatus {
	artifact := p.cache.Status(p.spec)
	st := ModelStatus{Mode: domain.PredictionModeModel, Artifact: &artifact}

	p.mu.RLock()
	lastErr := p.lastErr
	p.mu.RUnlock()

	switch {
	case artifact.State == domain.ArtifactStateReady:
		st.State = ModelStateReady
	case p.inflight.Load() > 0, artifact.State == domain.ArtifactStateDownloading:
		st.State = ModelStateLoading
	case lastErr != nil:
		st.State = ModelStateUnavailable
		st.Error = lastErr.Error()
	default:
		st.State = ModelStateNotLoaded
	}
	return st
}

func (p *ModelProvider) Events(ctx context.Context, limit int) ([]*domain.ArtifactEvent, error) {
	return p.cache.Events(ctx, p.spec.Name, limit)
}
