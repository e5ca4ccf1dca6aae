package ats

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
)

// layout describes where a platform keeps the parts of its form.
type layout struct {
	form   string
	resume string
	next   []string
	submit []string
	// direct maps canonical keys to the platform's fixed inputs. They are
	// optional: a missing one is skipped.
	direct map[fields.Key]string
}

// formFiller is the fill flow shared by every adapter.
type formFiller struct {
	layout   layout
	resolver LabelResolver
	opts     Options
	logger   *zap.Logger
}

func newFormFiller(l layout, resolver LabelResolver, opts Options, logger *zap.Logger) *formFiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &formFiller{layout: l, resolver: resolver, opts: opts, logger: logger}
}

func (f *formFiller) smoke(ctx context.Context, page Page, allowNext bool) bool {
	if !has(ctx, page, f.layout.form) {
		return false
	}
	if _, ok := firstPresent(ctx, page, f.layout.submit); ok {
		return true
	}
	if allowNext {
		_, ok := firstPresent(ctx, page, f.layout.next)
		return ok
	}
	return false
}

func (f *formFiller) fill(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) error {
	if strings.TrimSpace(resumePath) == "" {
		return stageErrorf(StageUpload, "no resume file configured")
	}

	uploaded := false
	submit := ""
	// Labels resolved on earlier steps are not sent to the resolver again.
	known := make(map[string]fields.Key)

	for step := 1; step <= f.opts.maxSteps(); step++ {
		log := f.logger.With(zap.Int("step", step))

		filled := f.fillStep(ctx, page, answers, known, log)
		log.Debug("step filled", zap.Int("fields", filled))

		if !uploaded && has(ctx, page, f.layout.resume) {
			if err := page.Upload(ctx, f.layout.resume, resumePath); err != nil {
				return &StageError{Stage: StageUpload, Err: err}
			}
			uploaded = true
			log.Debug("resume uploaded", zap.String("path", resumePath))
		}

		if sel, ok := firstPresent(ctx, page, f.layout.submit); ok {
			submit = sel
			break
		}

		next, ok := firstPresent(ctx, page, f.layout.next)
		if !ok {
			break
		}
		if err := page.Click(ctx, next); err != nil {
			return stageErrorf(StageFill, "advancing past step %d: %w", step, err)
		}
	}

	if !uploaded {
		return stageErrorf(StageUpload, "resume upload field %q not found", f.layout.resume)
	}
	if submit == "" {
		return stageErrorf(StageSubmit, "no submit control found")
	}

	if f.opts.DryRun {
		f.logger.Info("dry run, not submitting", zap.String("submit", submit))
		return nil
	}

	if err := page.Click(ctx, submit); err != nil {
		return &StageError{Stage: StageSubmit, Err: err}
	}
	return nil
}

// fillStep fills the currently visible step and returns how many fields were set.
func (f *formFiller) fillStep(ctx context.Context, page Page, answers fields.AnswerSet, known map[string]fields.Key, log *zap.Logger) int {
	filled := 0
	done := make(map[string]struct{})

	for key, sel := range f.layout.direct {
		value, ok := answers.Get(key)
		if !ok {
			continue
		}
		if !has(ctx, page, sel) {
			log.Debug("optional field not present", zap.String("key", key.String()), zap.String("selector", sel))
			continue
		}
		if err := page.SetValue(ctx, sel, value); err != nil {
			log.Warn("filling field failed, skipping", zap.String("key", key.String()), zap.Error(err))
			continue
		}
		done[sel] = struct{}{}
		filled++
	}

	found, err := page.Fields(ctx, f.layout.form)
	if err != nil {
		log.Warn("listing form fields failed", zap.Error(err))
		return filled
	}

	pending := make([]Field, 0, len(found))
	labels := make([]string, 0, len(found))
	for _, field := range found {
		if _, ok := done[field.Selector]; ok {
			continue
		}
		if field.Kind == KindFile || strings.TrimSpace(field.Label) == "" {
			continue
		}
		pending = append(pending, field)
		if _, ok := known[field.Label]; !ok {
			labels = append(labels, field.Label)
		}
	}
	if len(pending) == 0 || f.resolver == nil {
		return filled
	}

	if len(labels) > 0 {
		for _, res := range f.resolver.ResolveLabels(ctx, labels) {
			known[res.Label] = res.Key
		}
	}

	for _, field := range pending {
		key, ok := known[field.Label]
		if !ok || !key.IsKnown() {
			log.Debug("leaving unresolved field untouched", zap.String("label", field.Label))
			continue
		}
		value, ok := answers.Get(key)
		if !ok {
			log.Debug("no answer for field", zap.String("label", field.Label), zap.String("key", key.String()))
			continue
		}
		if err := f.setField(ctx, page, field, value); err != nil {
			log.Warn("filling field failed, skipping",
				zap.String("label", field.Label),
				zap.String("key", key.String()),
				zap.Error(err),
			)
			continue
		}
		filled++
	}

	return filled
}

var errNoOption = errors.New("no option matches the answer")

func (f *formFiller) setField(ctx context.Context, page Page, field Field, value string) error {
	switch field.Kind {
	case KindSelect, KindRadio:
		option, ok := chooseOption(field.Options, value)
		if !ok {
			return errNoOption
		}
		return page.SetValue(ctx, field.Selector, option)
	case KindCheckbox:
		return errors.New("checkboxes are not filled automatically")
	default:
		return page.SetValue(ctx, field.Selector, value)
	}
}

// chooseOption picks the option matching value: exact, then as the leading
// word, then as any whole word, all case-insensitive.
func chooseOption(options []string, value string) (string, bool) {
	want := strings.ToLower(fields.CollapseWhitespace(value))
	if want == "" {
		return "", false
	}

	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(want) + `\b`)
	matchers := []func(string) bool{
		func(o string) bool { return o == want },
		func(o string) bool {
			loc := word.FindStringIndex(o)
			return loc != nil && loc[0] == 0
		},
		word.MatchString,
	}
	for _, match := range matchers {
		for _, opt := range options {
			if match(strings.ToLower(fields.CollapseWhitespace(opt))) {
				return opt, true
			}
		}
	}
	return "", false
}
