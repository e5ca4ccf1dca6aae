package answers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/store"
)

type stubGenerator struct {
	mu        sync.Mutex
	narrative func() (string, error)
	variant   func() (string, error)
	narrCalls int
	varCalls  int
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.Contains(prompt, "Pick the resume") {
		s.varCalls++
		if s.variant == nil {
			return "", errors.New("no variant reply")
		}
		return s.variant()
	}

	s.narrCalls++
	if s.narrative == nil {
		return "I build reliable systems.", nil
	}
	return s.narrative()
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return s.GenerateContent(ctx, prompt)
}

func (s *stubGenerator) Model() string { return "stub" }

func (s *stubGenerator) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narrCalls, s.varCalls
}

func testProfile() *Profile {
	return &Profile{
		FullName:       "Jane Q Doe",
		Email:          "jane@example.com",
		Phone:          "+1 555 0100",
		City:           "Austin",
		WorkAuthorized: true,
		USTimezone:     true,
		YearsDotNet:    8,
		YearsAzure:     5,
		Resume: Resume{
			Skills: []string{"C#", ".NET", "Azure", "SQL"},
		},
		Variants: []ResumeVariant{{Name: "backend", Path: "/tmp/backend.pdf"}},
	}
}

func testJob() *Job {
	return &Job{ID: "gh-1001", Title: "Senior .NET Engineer", Company: "Acme", Description: "Build services on Azure."}
}

func newTestSynthesizer(mem *store.Memory, gen *stubGenerator, policies fields.Policies) *Synthesizer {
	s := NewSynthesizer(mem, gen, policies, zap.NewNop(), 0)
	s.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{}
	s := newTestSynthesizer(mem, gen, nil)
	ctx := context.Background()

	first, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	second, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)

	narr, _ := gen.counts()
	assert.Equal(t, 1, narr)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, "Jane", first.Answers[fields.KeyFirstName])
	assert.Equal(t, "Q Doe", first.Answers[fields.KeyLastName])
	assert.Equal(t, "Yes", first.Answers[fields.KeyWorkAuthorization])
	assert.Equal(t, "No", first.Answers[fields.KeyRequiresSponsorship])
	assert.Equal(t, "8", first.Answers[fields.KeyYearsDotNet])
	assert.Equal(t, "I build reliable systems.", first.Answers[fields.KeyWhyFit])
	assert.Equal(t, "backend", first.ResumeVariant)
	assert.Equal(t, []string{"answers:gh-1001"}, mem.Keys())
}

func TestSynthesizeConcurrentCallsShareOneGeneration(t *testing.T) {
	gen := &stubGenerator{}
	s := newTestSynthesizer(store.NewMemory(), gen, nil)

	var wg sync.WaitGroup
	results := make([]*Synthesis, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Synthesize(context.Background(), testJob(), testProfile())
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	narr, _ := gen.counts()
	assert.Equal(t, 1, narr)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].Answers, res.Answers)
	}
}

func TestSynthesizeTruncatesNarrative(t *testing.T) {
	long := strings.Repeat("I design and operate distributed .NET services on Azure. ", 12)
	gen := &stubGenerator{narrative: func() (string, error) { return "\"" + long + "\"", nil }}
	s := newTestSynthesizer(store.NewMemory(), gen, nil)

	res, err := s.Synthesize(context.Background(), testJob(), testProfile())
	require.NoError(t, err)

	why := res.Answers[fields.KeyWhyFit]
	assert.LessOrEqual(t, len([]rune(why)), fields.NarrativeMaxLength)
	assert.True(t, strings.HasSuffix(why, "Azure."), why)
	assert.False(t, strings.HasPrefix(why, "\""))
}

func TestSynthesizeFallbackIsKeptUntilNarrativeSucceeds(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{narrative: func() (string, error) { return "", context.DeadlineExceeded }}
	s := newTestSynthesizer(mem, gen, nil)
	ctx := context.Background()

	first, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	assert.True(t, first.NarrativeFallback)
	assert.Contains(t, first.Answers[fields.KeyWhyFit], "Senior .NET Engineer role at Acme")
	assert.Equal(t, 1, mem.Len())

	again, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(again)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "a failed retry returns the stored synthesis unchanged")

	narr, _ := gen.counts()
	assert.Equal(t, 2, narr)

	gen.mu.Lock()
	gen.narrative = nil
	gen.mu.Unlock()

	upgraded, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	assert.False(t, upgraded.NarrativeFallback)
	assert.Equal(t, "I build reliable systems.", upgraded.Answers[fields.KeyWhyFit])
	assert.Equal(t, first.Answers[fields.KeyEmail], upgraded.Answers[fields.KeyEmail])
	assert.Equal(t, first.ResumeVariant, upgraded.ResumeVariant)

	last, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	narr, _ = gen.counts()
	assert.Equal(t, 3, narr, "a regenerated narrative is not requested again")
	c, err := json.Marshal(upgraded)
	require.NoError(t, err)
	d, err := json.Marshal(last)
	require.NoError(t, err)
	assert.Equal(t, string(c), string(d))
}

func TestSynthesizePolicyViolationIsFatal(t *testing.T) {
	mem := store.NewMemory()
	policies := fields.DefaultPolicies()
	policies[fields.KeyCity] = fields.Policy{Allowed: []string{"Remote"}}

	s := newTestSynthesizer(mem, &stubGenerator{}, policies)

	_, err := s.Synthesize(context.Background(), testJob(), testProfile())
	require.Error(t, err)

	var violation *fields.PolicyViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, fields.KeyCity, violation.Key)
	assert.Zero(t, mem.Len())
}

func TestSynthesizeSelectsVariant(t *testing.T) {
	profile := testProfile()
	profile.Variants = []ResumeVariant{
		{Name: "backend", Path: "/tmp/backend.pdf"},
		{Name: "cloud architect", Path: "/tmp/cloud.pdf"},
	}

	cases := []struct {
		name  string
		reply func() (string, error)
		want  string
	}{
		{"exact", func() (string, error) { return "Cloud Architect", nil }, "cloud architect"},
		{"fuzzy", func() (string, error) { return "The best fit is the cloud architect resume.", nil }, "cloud architect"},
		{"unmatched", func() (string, error) { return "frontend", nil }, "backend"},
		{"failure", func() (string, error) { return "", errors.New("boom") }, "backend"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{variant: tc.reply}
			s := newTestSynthesizer(store.NewMemory(), gen, nil)

			res, err := s.Synthesize(context.Background(), testJob(), profile)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.ResumeVariant)

			_, variantCalls := gen.counts()
			assert.Equal(t, 1, variantCalls)
		})
	}
}

func TestClear(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{}
	s := newTestSynthesizer(mem, gen, nil)
	ctx := context.Background()

	_, err := s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "gh-1001"))
	assert.Zero(t, mem.Len())

	_, err = s.Synthesize(ctx, testJob(), testProfile())
	require.NoError(t, err)
	narr, _ := gen.counts()
	assert.Equal(t, 2, narr)

	assert.Error(t, s.Clear(ctx, " "))
}

func TestValidation(t *testing.T) {
	s := newTestSynthesizer(store.NewMemory(), &stubGenerator{}, nil)

	profile := testProfile()
	profile.Email = "not-an-email"
	_, err := s.Synthesize(context.Background(), testJob(), profile)
	assert.Error(t, err)

	_, err = s.Synthesize(context.Background(), &Job{Title: "No id"}, testProfile())
	assert.Error(t, err)
}

func TestMatchVariant(t *testing.T) {
	variants := []ResumeVariant{{Name: "data"}, {Name: "data platform"}}

	name, ok := MatchVariant("I'd go with data platform", variants)
	require.True(t, ok)
	assert.Equal(t, "data platform", name)

	_, ok = MatchVariant("da", variants)
	assert.False(t, ok)

	_, ok = MatchVariant("", variants)
	assert.False(t, ok)
}
