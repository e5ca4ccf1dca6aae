package ats

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spigell/formfill/internal/fields"
)

// Stage names the step of an application attempt that failed.
type Stage string

const (
	StageDetect Stage = "detection"
	StageSmoke  Stage = "smoke test"
	StageFill   Stage = "field fill"
	StageUpload Stage = "resume upload"
	StageSubmit Stage = "submit"
)

// State is the position of an attempt in Detected → SmokePassed → Filled → Submitted.
type State string

const (
	StateStarted     State = "started"
	StateDetected    State = "detected"
	StateSmokePassed State = "smoke_passed"
	StateFilled      State = "filled"
	StateSubmitted   State = "submitted"
	StateFailed      State = "failed"
)

// StageError is a critical failure of one stage. It ends the attempt.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErrorf(stage Stage, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

// Adapter handles one ATS platform.
type Adapter interface {
	Name() string
	// Detect requires both the platform URL and a platform-specific element.
	Detect(ctx context.Context, page Page) bool
	// Smoke reports whether the elements needed to proceed are present.
	Smoke(ctx context.Context, page Page) bool
	// Fill fills every resolvable field, uploads the resume and submits.
	// Per-field failures are logged and skipped; upload and submit failures
	// are returned as *StageError.
	Fill(ctx context.Context, page Page, answers fields.AnswerSet, resumePath string) error
}

// LabelResolver maps raw labels to canonical keys.
type LabelResolver interface {
	ResolveLabels(ctx context.Context, labels []string) []fields.LabelResolution
}

// Result is the outcome of one application attempt.
type Result struct {
	AttemptID string        `json:"attempt_id"`
	Success   bool          `json:"success"`
	Platform  string        `json:"platform,omitempty"`
	State     State         `json:"state"`
	Reached   State         `json:"reached"`
	Stage     Stage         `json:"failed_stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Options tune the shared fill flow.
type Options struct {
	// MaxSteps bounds how many next/continue pages a form may have.
	MaxSteps int `mapstructure:"max-steps"`
	// DryRun fills the form and verifies the submit control without clicking it.
	DryRun bool `mapstructure:"dry-run"`
}

const defaultMaxSteps = 8

func (o Options) maxSteps() int {
	if o.MaxSteps <= 0 {
		return defaultMaxSteps
	}
	return o.MaxSteps
}

// hostMatches reports whether raw is an http(s) URL whose host is one of
// domains or a subdomain of one.
func hostMatches(raw string, domains ...string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
