// Package resolution maps raw form-field labels onto canonical keys through
// three tiers: ordered heuristics, a persisted cache and one batched
// semantic request per form.
package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/store"
)

const cacheKeyPrefix = "label:"

const (
	SourceHeuristic = "heuristic"
	SourceSemantic  = "semantic"
)

// ErrUnknownNotCached is returned when a caller tries to persist an unknown resolution.
var ErrUnknownNotCached = errors.New("unknown resolutions are never cached")

type cacheEntry struct {
	Key        fields.Key `json:"key"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Cache persists label resolutions in a Store. Entries never expire.
type Cache struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewCache(s store.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, logger: logger, now: time.Now}
}

// NormalizeLabel lower-cases label and collapses its whitespace.
func NormalizeLabel(label string) string {
	return strings.ToLower(fields.CollapseWhitespace(label))
}

func cacheKey(label string) string {
	return cacheKeyPrefix + NormalizeLabel(label)
}

// Get returns the stored resolution for label. Store failures and corrupt
// entries are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, label string) (fields.LabelResolution, bool) {
	if c == nil || c.store == nil || NormalizeLabel(label) == "" {
		return fields.LabelResolution{}, false
	}

	entry, err := c.load(ctx, label)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("resolution cache lookup failed", zap.String("label", label), zap.Error(err))
		}
		return fields.LabelResolution{}, false
	}

	return fields.LabelResolution{Label: label, Key: entry.Key, Confidence: entry.Confidence}, true
}

// Put upserts res. A stored entry with higher confidence is kept, and an
// identical entry is not rewritten.
func (c *Cache) Put(ctx context.Context, res fields.LabelResolution, source string) error {
	if c == nil || c.store == nil {
		return errors.New("resolution cache is not configured")
	}
	if !res.Key.IsKnown() {
		return ErrUnknownNotCached
	}
	if NormalizeLabel(res.Label) == "" {
		return errors.New("label must not be empty")
	}

	existing, err := c.load(ctx, res.Label)
	switch {
	case err == nil:
		if existing.Confidence > res.Confidence {
			return nil
		}
		if existing.Key == res.Key && existing.Confidence == res.Confidence {
			return nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		c.logger.Debug("reading existing resolution before write", zap.String("label", res.Label), zap.Error(err))
	}

	data, err := json.Marshal(cacheEntry{
		Key:        res.Key,
		Confidence: res.Confidence,
		Source:     source,
		UpdatedAt:  c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}

	if err := c.store.Put(ctx, cacheKey(res.Label), data); err != nil {
		return fmt.Errorf("store resolution for %q: %w", res.Label, err)
	}
	return nil
}

func (c *Cache) load(ctx context.Context, label string) (*cacheEntry, error) {
	data, err := c.store.Get(ctx, cacheKey(label))
	if err != nil {
		return nil, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode resolution: %w", err)
	}
	if _, ok := fields.ParseKey(string(entry.Key)); !ok || !entry.Key.IsKnown() {
		return nil, fmt.Errorf("cached key %q is outside the vocabulary", entry.Key)
	}

	return &entry, nil
}
