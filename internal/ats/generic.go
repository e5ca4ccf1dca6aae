package ats

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
)

var genericLayout = layout{
	form:   "form",
	resume: "input[type=file]",
	next: []string{
		"button[data-action=next]",
		"button[data-qa=next]",
		"button.next",
		"button[aria-label*=Next]",
		"button[aria-label*=Continue]",
	},
	submit: []string{"button[type=submit]", "input[type=submit]"},
}

// Generic is the fallback for pages no platform adapter claims. It relies
// entirely on label resolution.
type Generic struct {
	filler *formFiller
}

func NewGeneric(resolver LabelResolver, opts Options, logger *zap.Logger) *Generic {
	return &Generic{filler: newFormFiller(genericLayout, resolver, opts, logger)}
}

func (g *Generic) Name() string { return "generic" }

// Detect always claims the page; the dispatcher consults it last.
func (g *Generic) Detect(context.Context, Page) bool { return true }

func (g *Generic) Smoke(ctx context.Context, page Page) bool {
	return g.filler.smoke(ctx, page, true)
}

func (g *Generic) Fill(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) error {
	return g.filler.fill(ctx, page, answers, resumePath)
}
