// Package history remembers which postings were already applied to so a
// repeated run does not submit the same application twice.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/store"
)

const keyPrefix = "applied:"

// Record describes one submitted application.
type Record struct {
	JobID       string    `json:"job_id"`
	AttemptID   string    `json:"attempt_id"`
	Platform    string    `json:"platform"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// History is backed by the shared store.
type History struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(s store.Store, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{store: s, logger: logger, now: time.Now}
}

// Lookup returns the record for jobID if that job was already submitted.
func (h *History) Lookup(ctx context.Context, jobID string) (*Record, bool, error) {
	data, err := h.store.Get(ctx, key(jobID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading applied history: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		h.logger.Warn("ignoring corrupt history entry", zap.String("job_id", jobID), zap.Error(err))
		return nil, false, nil
	}
	return &rec, true, nil
}

// Remember stores a successful submission. Dry runs and failed attempts are not recorded.
func (h *History) Remember(ctx context.Context, jobID string, result *ats.Result) error {
	if result == nil || !result.Success || result.State != ats.StateSubmitted {
		return nil
	}

	rec := Record{
		JobID:       jobID,
		AttemptID:   result.AttemptID,
		Platform:    result.Platform,
		SubmittedAt: h.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := h.store.Put(ctx, key(jobID), data); err != nil {
		return fmt.Errorf("writing applied history: %w", err)
	}

	h.logger.Info("application recorded", zap.String("job_id", jobID), zap.String("attempt_id", rec.AttemptID))
	return nil
}

// Forget drops the record so the job can be applied to again.
func (h *History) Forget(ctx context.Context, jobID string) error {
	return h.store.Delete(ctx, key(jobID))
}

func key(jobID string) string {
	return keyPrefix + strings.TrimSpace(jobID)
}
