// Package ats drives job-application forms on applicant tracking systems
// through a narrow page-interaction interface.
package ats

import (
	"context"
)

type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindSelect   FieldKind = "select"
	KindRadio    FieldKind = "radio"
	KindCheckbox FieldKind = "checkbox"
	KindFile     FieldKind = "file"
)

// Field is one visible, labelled form control.
type Field struct {
	Label    string    `json:"label"`
	Selector string    `json:"selector"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// Page is the page-interaction collaborator. Selectors are CSS selectors;
// a comma-separated list matches any of its members.
type Page interface {
	URL() string
	Count(ctx context.Context, selector string) (int, error)
	// Fields lists the labelled controls inside the first element matching scope.
	Fields(ctx context.Context, scope string) ([]Field, error)
	Value(ctx context.Context, selector string) (string, error)
	// SetValue types into text controls and picks the option with the given
	// visible text for select and radio controls.
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Upload(ctx context.Context, selector, path string) error
}

func has(ctx context.Context, page Page, selector string) bool {
	if selector == "" {
		return false
	}
	n, err := page.Count(ctx, selector)
	return err == nil && n > 0
}

// firstPresent returns the first selector of candidates present on page.
func firstPresent(ctx context.Context, page Page, candidates []string) (string, bool) {
	for _, sel := range candidates {
		if has(ctx, page, sel) {
			return sel, true
		}
	}
	return "", false
}
