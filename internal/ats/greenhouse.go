package ats

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
)

const greenhouseMarker = "#application_form, #grnhse_app, form#application-form"

var greenhouseLayout = layout{
	form:   "#application_form, form#application-form",
	resume: "#resume, input[type=file][name*=resume], #resume_fieldset input[type=file]",
	submit: []string{"#submit_app", "button[type=submit]", "input[type=submit]"},
	direct: map[fields.Key]string{
		fields.KeyFirstName:   "#first_name",
		fields.KeyLastName:    "#last_name",
		fields.KeyEmail:       "#email",
		fields.KeyPhone:       "#phone",
		fields.KeyLinkedInURL: "input[autocomplete=linkedin], input[name*=linkedin]",
	},
}

// Greenhouse handles boards.greenhouse.io and job-boards.greenhouse.io forms.
type Greenhouse struct {
	filler *formFiller
}

func NewGreenhouse(resolver LabelResolver, opts Options, logger *zap.Logger) *Greenhouse {
	return &Greenhouse{filler: newFormFiller(greenhouseLayout, resolver, opts, logger)}
}

func (g *Greenhouse) Name() string { return "greenhouse" }

func (g *Greenhouse) Detect(ctx context.Context, page Page) bool {
	return hostMatches(page.URL(), "greenhouse.io") && has(ctx, page, greenhouseMarker)
}

func (g *Greenhouse) Smoke(ctx context.Context, page Page) bool {
	return g.filler.smoke(ctx, page, false)
}

func (g *Greenhouse) Fill(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) error {
	return g.filler.fill(ctx, page, answers, resumePath)
}
