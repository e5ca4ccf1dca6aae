package ats

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/logger"
)

// Dispatcher picks the adapter for a page and runs one application attempt.
type Dispatcher struct {
	adapters []Adapter
	fallback Adapter
	dryRun   bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher tries adapters in the given order and uses fallback when none
// claims the page.
func NewDispatcher(fallback Adapter, log *zap.Logger, adapters ...Adapter) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{adapters: adapters, fallback: fallback, logger: log, now: time.Now}
}

// NewDefaultDispatcher registers Greenhouse and Lever with Generic as fallback.
func NewDefaultDispatcher(resolver LabelResolver, opts Options, log *zap.Logger) *Dispatcher {
	d := NewDispatcher(
		NewGeneric(resolver, opts, log),
		log,
		NewGreenhouse(resolver, opts, log),
		NewLever(resolver, opts, log),
	)
	d.dryRun = opts.DryRun
	return d
}

// Select returns the first adapter whose Detect claims page, or the fallback.
func (d *Dispatcher) Select(ctx context.Context, page Page) (Adapter, bool) {
	for _, a := range d.adapters {
		if a.Detect(ctx, page) {
			return a, true
		}
	}
	if d.fallback != nil {
		return d.fallback, true
	}
	return nil, false
}

// Apply runs detect, smoke and fill against page. Cancellation is honoured
// between stages only; a fill that has started runs to completion.
func (d *Dispatcher) Apply(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) *Result {
	started := d.now()
	result := &Result{AttemptID: uuid.NewString(), State: StateStarted, Reached: StateStarted}
	log := logger.WithFields(d.logger, logger.ApplicationFields("", "", result.AttemptID)...)

	finish := func(err error) *Result {
		result.Duration = d.now().Sub(started)
		if err == nil && d.dryRun {
			result.Success = true
			result.State, result.Reached = StateFilled, StateFilled
			log.Info("application filled without submitting", zap.Duration("duration", result.Duration))
			return result
		}
		if err == nil {
			result.Success = true
			result.State, result.Reached = StateSubmitted, StateSubmitted
			log.Info("application submitted", zap.Duration("duration", result.Duration))
			return result
		}

		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			stageErr = &StageError{Stage: StageFill, Err: err}
		}
		result.State = StateFailed
		result.Stage = stageErr.Stage
		result.Err = stageErr
		result.Error = stageErr.Error()
		log.Warn("application failed",
			zap.String("stage", string(stageErr.Stage)),
			zap.String("reached", string(result.Reached)),
			zap.Error(stageErr.Err),
		)
		return result
	}

	if err := ctx.Err(); err != nil {
		return finish(&StageError{Stage: StageDetect, Err: err})
	}

	adapter, ok := d.Select(ctx, page)
	if !ok {
		return finish(stageErrorf(StageDetect, "no adapter claims %s", page.URL()))
	}
	result.Platform = adapter.Name()
	result.State, result.Reached = StateDetected, StateDetected
	log = logger.WithFields(log, logger.ApplicationFields("", adapter.Name(), "")...)
	log.Info("platform detected", zap.String("url", page.URL()))

	if err := ctx.Err(); err != nil {
		return finish(&StageError{Stage: StageSmoke, Err: err})
	}
	if !adapter.Smoke(ctx, page) {
		return finish(stageErrorf(StageSmoke, "%s form or submit control not found", adapter.Name()))
	}
	result.State, result.Reached = StateSmokePassed, StateSmokePassed

	if err := ctx.Err(); err != nil {
		return finish(&StageError{Stage: StageFill, Err: err})
	}
	if err := adapter.Fill(context.WithoutCancel(ctx), page, answers, resumePath); err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) && stageErr.Stage == StageSubmit {
			result.Reached = StateFilled
		}
		return finish(err)
	}

	return finish(nil)
}
