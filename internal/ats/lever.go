package ats

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
)

const leverMarker = ".application-form, .posting-apply, form[data-qa=application-form]"

var leverLayout = layout{
	form:   ".application-form, form[data-qa=application-form]",
	resume: "#resume-upload-input, input[type=file][name=resume]",
	submit: []string{"#btn-submit", "button[data-qa=btn-submit]", "button[type=submit]"},
	direct: map[fields.Key]string{
		fields.KeyFullName:    "input[name=name]",
		fields.KeyEmail:       "input[name=email]",
		fields.KeyPhone:       "input[name=phone]",
		fields.KeyCity:        "input[name=location]",
		fields.KeyLinkedInURL: "input[name='urls[LinkedIn]']",
	},
}

// Lever handles jobs.lever.co forms.
type Lever struct {
	filler *formFiller
}

func NewLever(resolver LabelResolver, opts Options, logger *zap.Logger) *Lever {
	return &Lever{filler: newFormFiller(leverLayout, resolver, opts, logger)}
}

func (l *Lever) Name() string { return "lever" }

func (l *Lever) Detect(ctx context.Context, page Page) bool {
	return hostMatches(page.URL(), "lever.co") && has(ctx, page, leverMarker)
}

func (l *Lever) Smoke(ctx context.Context, page Page) bool {
	return l.filler.smoke(ctx, page, false)
}

func (l *Lever) Fill(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) error {
	return l.filler.fill(ctx, page, answers, resumePath)
}
