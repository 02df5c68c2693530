// Package knowledge holds the pluggable algorithms consulted by the workflow
// and the higher layers.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"go.uber.org/zap"
)

// Registry runs registered capabilities in registration order. A failing or
// panicking capability yields a failed result and never aborts the others.
type Registry struct {
	mu     sync.RWMutex
	ids    []string
	caps   map[string]domain.Capability
	logger *zap.Logger
}

var _ domain.KnowledgeRegistry = (*Registry)(nil)

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		caps:   make(map[string]domain.Capability),
		logger: logger,
	}
}

// NewDefaultRegistry returns a registry with the built-in algorithms.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	_ = r.Register(KeywordSupportID, KeywordSupport{})
	_ = r.Register(SourceDiversityID, SourceDiversity{})
	return r
}

func (r *Registry) Register(id string, c domain.Capability) error {
	if id == "" || c == nil {
		return fmt.Errorf("register capability %q: %w", id, domain.ErrUnknownCapability)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.caps[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.caps[id] = c
	return nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ids...)
}

func (r *Registry) Execute(ctx context.Context, layer domain.LayerID, sessionID string, pass int, in domain.AlgorithmInput) []domain.AlgorithmResult {
	r.mu.RLock()
	ids := append([]string(nil), r.ids...)
	caps := make([]domain.Capability, len(ids))
	for i, id := range ids {
		caps[i] = r.caps[id]
	}
	r.mu.RUnlock()

	results := make([]domain.AlgorithmResult, 0, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, domain.AlgorithmResult{AlgorithmID: id, Status: domain.AlgorithmSkipped, Error: err.Error()})
			continue
		}
		res := r.run(ctx, id, caps[i], layer, sessionID, pass, in)
		results = append(results, res)
	}
	return results
}

func (r *Registry) run(ctx context.Context, id string, c domain.Capability, layer domain.LayerID, sessionID string, pass int, in domain.AlgorithmInput) (res domain.AlgorithmResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("knowledge algorithm panicked",
				zap.String("algorithm", id),
				zap.String("session_id", sessionID),
				zap.Any("panic", p))
			res = domain.AlgorithmResult{AlgorithmID: id, Status: domain.AlgorithmFailed, Error: fmt.Sprint(p)}
		}
	}()

	res, err := c.Execute(ctx, layer, sessionID, pass, in)
	if err != nil {
		r.logger.Warn("knowledge algorithm failed",
			zap.String("algorithm", id),
			zap.Stringer("layer", layer),
			zap.String("session_id", sessionID),
			zap.Int("pass", pass),
			zap.Error(err))
		return domain.AlgorithmResult{AlgorithmID: id, Status: domain.AlgorithmFailed, Error: err.Error()}
	}
	res.AlgorithmID = id
	if res.Status == "" {
		res.Status = domain.AlgorithmOK
	}
	return res
}

// Summary averages the confidence of successful results. ok is false when
// none succeeded.
func Summary(results []domain.AlgorithmResult) (confidence float64, ok bool) {
	var sum float64
	n := 0
	for _, r := range results {
		if r.Status != domain.AlgorithmOK {
			continue
		}
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
