// Package answers assembles and caches the canonical answer set for one job.
package answers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/formfill/internal/ai"
	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/logger"
	"github.com/spigell/formfill/internal/store"
	"github.com/spigell/formfill/internal/utils"
)

const (
	cacheKeyPrefix      = "answers:"
	defaultMaxLogLength = 200
	// descriptionLimit bounds the job description placed into prompts.
	descriptionLimit = 6000
	// Shorter answers are too ambiguous to match inside a variant name.
	minFuzzyAnswer = 3
)

var (
	//go:embed narrative.md
	narrativeTemplate string

	//go:embed variant.md
	variantTemplate string
)

// Synthesis is the cached result for one job.
type Synthesis struct {
	JobID         string           `json:"job_id"`
	Answers       fields.AnswerSet `json:"answers"`
	ResumeVariant string           `json:"resume_variant,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	// NarrativeFallback is set when why_fit came from the built-in template.
	// Later calls retry the narrative and keep the stored synthesis if that fails again.
	NarrativeFallback bool `json:"narrative_fallback,omitempty"`
}

func (s *Synthesis) clone() *Synthesis {
	out := *s
	out.Answers = s.Answers.Clone()
	return &out
}

// Synthesizer builds answer sets at most once per job.
type Synthesizer struct {
	store     store.Store
	generator ai.Generator
	policies  fields.Policies
	logger    *zap.Logger
	maxLogLen int
	now       func() time.Time
	group     singleflight.Group
}

// NewSynthesizer wires the synthesizer. A nil generator always uses the
// template narrative; nil policies fall back to the defaults.
func NewSynthesizer(s store.Store, generator ai.Generator, policies fields.Policies, log *zap.Logger, maxLogLength int) *Synthesizer {
	if s == nil {
		s = store.NewMemory()
	}
	if policies == nil {
		policies = fields.DefaultPolicies()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Synthesizer{
		store:     s,
		generator: generator,
		policies:  policies,
		logger:    log,
		maxLogLen: maxLogLength,
		now:       time.Now,
	}
}

// Synthesize returns the answer set for job. A cached synthesis is returned
// unchanged. Concurrent calls for the same job share one synthesis.
func (s *Synthesizer) Synthesize(ctx context.Context, job *Job, profile *Profile) (*Synthesis, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	key := cacheKeyPrefix + job.ID

	v, err, _ := s.group.Do(key, func() (any, error) {
		if cached, ok := s.load(ctx, key); ok {
			s.logger.Debug("answer cache hit", zap.String(logger.FieldJobID, job.ID))
			if cached.NarrativeFallback {
				return s.retryNarrative(ctx, key, cached, job, profile), nil
			}
			return cached, nil
		}
		return s.synthesize(ctx, key, job, profile)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Synthesis).clone(), nil
}

// Clear drops the cached synthesis for jobID so the next call rebuilds it.
func (s *Synthesizer) Clear(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id is required")
	}
	if err := s.store.Delete(ctx, cacheKeyPrefix+jobID); err != nil {
		return fmt.Errorf("clear answers for job %s: %w", jobID, err)
	}
	return nil
}

func (s *Synthesizer) load(ctx context.Context, key string) (*Synthesis, bool) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("answer cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var cached Synthesis
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("discarding undecodable answer cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &cached, true
}

func (s *Synthesizer) synthesize(ctx context.Context, key string, job *Job, profile *Profile) (*Synthesis, error) {
	log := logger.WithFields(s.logger, logger.ApplicationFields(job.ID, "", "")...)

	answers := profile.StaticAnswers()

	narrative, fallback := s.narrative(ctx, job, profile, log)
	answers[fields.KeyWhyFit] = fields.Truncate(narrative, fields.NarrativeMaxLength, fields.DefaultSentenceMargin)

	variant := s.selectVariant(ctx, job, profile, log)

	sanitized, err := s.policies.Sanitize(answers)
	if err != nil {
		return nil, fmt.Errorf("sanitizing answers for job %s: %w", job.ID, err)
	}

	result := &Synthesis{
		JobID:             job.ID,
		Answers:           sanitized,
		ResumeVariant:     variant,
		CreatedAt:         s.now().UTC(),
		NarrativeFallback: fallback,
	}

	if fallback {
		log.Warn("narrative generation failed, caching template answer until a retry succeeds")
	}

	if err := s.save(ctx, key, result); err != nil {
		return nil, err
	}

	log.Info("answers synthesized",
		zap.Int("answers", len(sanitized)),
		zap.String("resume_variant", variant),
	)
	return result, nil
}

// retryNarrative replaces a template why_fit in a stored synthesis once
// generation succeeds. Until then the stored synthesis is returned unchanged.
func (s *Synthesizer) retryNarrative(ctx context.Context, key string, cached *Synthesis, job *Job, profile *Profile) *Synthesis {
	if s.generator == nil {
		return cached
	}

	log := logger.WithFields(s.logger, logger.ApplicationFields(job.ID, "", "")...)

	text, fallback := s.narrative(ctx, job, profile, log)
	if fallback {
		log.Debug("narrative still unavailable, keeping stored answers")
		return cached
	}

	why, err := s.policies.SanitizeValue(fields.KeyWhyFit, fields.Truncate(text, fields.NarrativeMaxLength, fields.DefaultSentenceMargin))
	if err != nil {
		log.Warn("generated narrative rejected by policy, keeping stored answers", zap.Error(err))
		return cached
	}

	upgraded := cached.clone()
	upgraded.Answers[fields.KeyWhyFit] = why
	upgraded.NarrativeFallback = false
	upgraded.CreatedAt = s.now().UTC()

	if err := s.save(ctx, key, upgraded); err != nil {
		log.Warn("caching regenerated narrative failed", zap.Error(err))
	}
	log.Info("narrative regenerated")
	return upgraded
}

func (s *Synthesizer) save(ctx context.Context, key string, result *Synthesis) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		s.logger.Warn("caching answers failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// narrative generates why_fit. The second result reports that the template
// fallback was used.
func (s *Synthesizer) narrative(ctx context.Context, job *Job, profile *Profile, log *zap.Logger) (string, bool) {
	if s.generator == nil {
		return fallbackNarrative(job, profile), true
	}

	prompt, err := buildNarrativePrompt(job, profile)
	if err != nil {
		log.Warn("building narrative prompt", zap.Error(err))
		return fallbackNarrative(job, profile), true
	}

	log = logger.WithFields(log, logger.CommonFields("", s.generator.Model())...)
	log.Debug("narrative request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		log.Warn("narrative generation failed", zap.Error(err))
		return fallbackNarrative(job, profile), true
	}

	text := fields.CollapseWhitespace(ai.CleanText(raw))
	log.Debug("narrative response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, s.maxLogLen)),
	)
	if text == "" {
		return fallbackNarrative(job, profile), true
	}
	return text, false
}

func buildNarrativePrompt(job *Job, profile *Profile) (string, error) {
	applicant := map[string]any{
		"name":                 profile.Name(),
		"city":                 profile.City,
		"work_authorized":      profile.WorkAuthorized,
		"requires_sponsorship": profile.RequiresSponsorship,
		"years_dotnet":         profile.YearsDotNet,
		"years_azure":          profile.YearsAzure,
	}
	applicantJSON, err := json.MarshalIndent(applicant, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal applicant: %w", err)
	}
	resumeJSON, err := json.MarshalIndent(profile.Resume, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal resume: %w", err)
	}

	company := job.Company
	if strings.TrimSpace(company) == "" {
		company = "not specified"
	}

	prompt := strings.NewReplacer(
		"{{MAX_LENGTH}}", strconv.Itoa(fields.NarrativeMaxLength),
		"{{PROFILE_JSON}}", string(applicantJSON),
		"{{RESUME_JSON}}", string(resumeJSON),
		"{{JOB_TITLE}}", job.Title,
		"{{JOB_COMPANY}}", company,
		"{{JOB_DESCRIPTION}}", limitRunes(job.Description, descriptionLimit),
	).Replace(narrativeTemplate)

	return prompt, nil
}

func fallbackNarrative(job *Job, profile *Profile) string {
	var b strings.Builder
	b.WriteString("I am excited about the ")
	b.WriteString(job.Title)
	b.WriteString(" role")
	if c := strings.TrimSpace(job.Company); c != "" {
		b.WriteString(" at ")
		b.WriteString(c)
	}
	b.WriteString(".")

	skills := profile.Resume.Skills
	if len(skills) > 3 {
		skills = skills[:3]
	}
	if len(skills) > 0 {
		b.WriteString(" My experience with ")
		b.WriteString(strings.Join(skills, ", "))
		b.WriteString(" matches what the team needs.")
	} else if profile.YearsDotNet > 0 {
		fmt.Fprintf(&b, " I bring %d years of .NET experience to the team.", profile.YearsDotNet)
	}
	return b.String()
}

// selectVariant picks the resume variant for job. A response that matches no
// known variant selects the first one.
func (s *Synthesizer) selectVariant(ctx context.Context, job *Job, profile *Profile, log *zap.Logger) string {
	variants := profile.Variants
	switch {
	case len(variants) == 0:
		return ""
	case len(variants) == 1 || s.generator == nil:
		return variants[0].Name
	}

	var list strings.Builder
	for _, v := range variants {
		fmt.Fprintf(&list, "- %s", v.Name)
		if summary := strings.TrimSpace(v.Summary); summary != "" {
			fmt.Fprintf(&list, ": %s", summary)
		}
		list.WriteString("\n")
	}

	prompt := strings.NewReplacer(
		"{{VARIANTS}}", strings.TrimRight(list.String(), "\n"),
		"{{JOB_TITLE}}", job.Title,
		"{{JOB_DESCRIPTION}}", limitRunes(job.Description, descriptionLimit),
	).Replace(variantTemplate)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		log.Warn("resume variant selection failed, using first variant", zap.Error(err))
		return variants[0].Name
	}

	if name, ok := MatchVariant(ai.CleanText(raw), variants); ok {
		return name
	}

	log.Warn("resume variant response did not match any variant, using first variant",
		zap.String("response", utils.TruncateForLog(raw, s.maxLogLen)),
	)
	return variants[0].Name
}

// MatchVariant validates a free-text answer against the known variants: an
// exact case-insensitive match first, then the longest variant name contained
// in the answer, then an answer contained in a variant name.
func MatchVariant(answer string, variants []ResumeVariant) (string, bool) {
	answer = strings.ToLower(fields.CollapseWhitespace(strings.Trim(answer, ".*`- ")))
	if answer == "" {
		return "", false
	}

	for _, v := range variants {
		if strings.ToLower(fields.CollapseWhitespace(v.Name)) == answer {
			return v.Name, true
		}
	}

	byLength := make([]ResumeVariant, len(variants))
	copy(byLength, variants)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i].Name) > len(byLength[j].Name)
	})

	for _, v := range byLength {
		name := strings.ToLower(fields.CollapseWhitespace(v.Name))
		if name != "" && strings.Contains(answer, name) {
			return v.Name, true
		}
	}
	if utf8.RuneCountInString(answer) < minFuzzyAnswer {
		return "", false
	}
	for _, v := range byLength {
		name := strings.ToLower(fields.CollapseWhitespace(v.Name))
		if strings.Contains(name, answer) {
			return v.Name, true
		}
	}

	return "", false
}

func limitRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
