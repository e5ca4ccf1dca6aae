package resolution

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/logger"
)

// TrustThreshold is the confidence a cached resolution must exceed to be used
// without re-verification.
const TrustThreshold = 0.7

const (
	tierHeuristic = "heuristic"
	tierCache     = "cache"
	tierSemantic  = "semantic"
)

// BatchResolver is the last, expensive tier.
type BatchResolver interface {
	Resolve(ctx context.Context, labels []string) []fields.LabelResolution
}

// Engine resolves form labels. The semantic tier is optional; without it
// unresolved labels stay unknown.
type Engine struct {
	heuristics *fields.Heuristics
	cache      *Cache
	semantic   BatchResolver
	logger     *zap.Logger
}

func NewEngine(heuristics *fields.Heuristics, cache *Cache, semantic BatchResolver, log *zap.Logger) *Engine {
	if heuristics == nil {
		heuristics = fields.NewHeuristics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{heuristics: heuristics, cache: cache, semantic: semantic, logger: log}
}

// ResolveLabels returns exactly one resolution per distinct input label, in
// input order. Identical labels are resolved once and reported once. It makes
// at most one semantic request and never returns an error.
func (e *Engine) ResolveLabels(ctx context.Context, labels []string) []fields.LabelResolution {
	order := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		order = append(order, label)
	}

	results := make(map[string]fields.LabelResolution, len(order))
	var pending []string

	for _, label := range order {
		if key, confidence, ok := e.heuristics.Match(label); ok {
			res := fields.LabelResolution{Label: label, Key: key, Confidence: confidence}
			results[label] = res
			e.persist(ctx, res, SourceHeuristic)
			e.trace(label, res, tierHeuristic)
			continue
		}

		if cached, ok := e.cache.Get(ctx, label); ok && cached.Confidence > TrustThreshold {
			results[label] = cached
			e.trace(label, cached, tierCache)
			continue
		}

		pending = append(pending, label)
	}

	if len(pending) > 0 {
		for _, res := range e.resolvePending(ctx, pending) {
			results[res.Label] = res
			if res.Key.IsKnown() {
				e.persist(ctx, res, SourceSemantic)
			}
			e.trace(res.Label, res, tierSemantic)
		}
	}

	out := make([]fields.LabelResolution, 0, len(order))
	for _, label := range order {
		res, ok := results[label]
		if !ok {
			res = fields.Unresolved(label)
		}
		out = append(out, res)
	}

	return out
}

func (e *Engine) resolvePending(ctx context.Context, pending []string) []fields.LabelResolution {
	if e.semantic == nil {
		out := make([]fields.LabelResolution, len(pending))
		for i, label := range pending {
			out[i] = fields.Unresolved(label)
		}
		return out
	}

	resolved := e.semantic.Resolve(ctx, pending)

	// Only accept answers for labels that were asked about.
	asked := make(map[string]struct{}, len(pending))
	for _, label := range pending {
		asked[label] = struct{}{}
	}
	out := make([]fields.LabelResolution, 0, len(resolved))
	for _, res := range resolved {
		if _, ok := asked[res.Label]; !ok {
			continue
		}
		if !res.Key.IsKnown() {
			res = fields.Unresolved(res.Label)
		}
		out = append(out, res)
	}
	return out
}

func (e *Engine) persist(ctx context.Context, res fields.LabelResolution, source string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(ctx, res, source); err != nil {
		e.logger.Warn("persisting resolution", zap.String("label", res.Label), zap.Error(err))
	}
}

func (e *Engine) trace(label string, res fields.LabelResolution, tier string) {
	e.logger.Debug("label resolved",
		append(logger.StringFields(logger.StringField{Key: logger.FieldTier, Value: tier}),
			zap.String("label", label),
			zap.String("key", res.Key.String()),
			zap.Float64("confidence", res.Confidence),
		)...,
	)
}
