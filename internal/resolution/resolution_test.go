package resolution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/store"
)

type stubGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   func(prompt string) (string, error)
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return s.GenerateJSON(ctx, prompt)
}

func (s *stubGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.reply == nil {
		return "[]", nil
	}
	return s.reply(prompt)
}

func (s *stubGenerator) Model() string { return "stub" }

func (s *stubGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func replyWith(body string) func(string) (string, error) {
	return func(string) (string, error) { return body, nil }
}

func newTestEngine(mem *store.Memory, gen *stubGenerator) *Engine {
	cache := NewCache(mem, zap.NewNop())
	var semantic BatchResolver
	if gen != nil {
		semantic = NewSemantic(gen, zap.NewNop(), 0)
	}
	return NewEngine(fields.NewHeuristics(), cache, semantic, zap.NewNop())
}

func TestHeuristicMatchesArePersisted(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{}
	engine := newTestEngine(mem, gen)
	ctx := context.Background()

	out := engine.ResolveLabels(ctx, []string{"Email Address", "Phone Number"})
	require.Len(t, out, 2)
	assert.Equal(t, fields.KeyEmail, out[0].Key)
	assert.Equal(t, fields.KeyPhone, out[1].Key)
	assert.Greater(t, out[0].Confidence, TrustThreshold)
	assert.Zero(t, gen.Calls())

	cache := NewCache(mem, nil)
	for _, res := range out {
		cached, ok := cache.Get(ctx, res.Label)
		require.True(t, ok, res.Label)
		assert.Equal(t, res.Key, cached.Key)
		assert.Equal(t, res.Confidence, cached.Confidence)
	}
}

func TestTrustedCacheSkipsSemanticTier(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	cache := NewCache(mem, nil)
	require.NoError(t, cache.Put(ctx, fields.LabelResolution{Label: "Where do you live?", Key: fields.KeyCity, Confidence: 0.9}, SourceHeuristic))

	gen := &stubGenerator{}
	engine := newTestEngine(mem, gen)

	out := engine.ResolveLabels(ctx, []string{"  where do   you live? "})
	require.Len(t, out, 1)
	assert.Equal(t, fields.KeyCity, out[0].Key)
	assert.Equal(t, "  where do   you live? ", out[0].Label)
	assert.Zero(t, gen.Calls(), "trusted cache entries must not reach the semantic tier")
}

func TestSemanticResolutionIsReverified(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	gen := &stubGenerator{reply: replyWith(`[{"label":"Preferred contact address","key":"email"}]`)}
	engine := newTestEngine(mem, gen)

	first := engine.ResolveLabels(ctx, []string{"Preferred contact address"})
	require.Len(t, first, 1)
	assert.Equal(t, fields.KeyEmail, first[0].Key)
	assert.Equal(t, SemanticConfidence, first[0].Confidence)
	assert.Equal(t, 1, mem.Len())

	engine.ResolveLabels(ctx, []string{"Preferred contact address"})
	assert.Equal(t, 2, gen.Calls(), "entries at the trust threshold are re-resolved")
}

func TestUnknownBatchDoesNotGrowCache(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{reply: replyWith(`{"mappings":[{"label":"Favourite colour","key":"unknown"},{"label":"Shoe size","key":"shoe_size"}]}`)}
	engine := newTestEngine(mem, gen)

	out := engine.ResolveLabels(context.Background(), []string{"Favourite colour", "Shoe size", "Pet's name?"})
	require.Len(t, out, 3)
	for _, res := range out {
		assert.Equal(t, fields.KeyUnknown, res.Key, res.Label)
		assert.Zero(t, res.Confidence)
	}
	assert.Equal(t, 1, gen.Calls())
	assert.Zero(t, mem.Len())
}

func TestSemanticTimeoutDegradesToUnknown(t *testing.T) {
	mem := store.NewMemory()
	core, logs := observer.New(zapcore.WarnLevel)
	gen := &stubGenerator{reply: func(string) (string, error) { return "", context.DeadlineExceeded }}

	cache := NewCache(mem, nil)
	engine := NewEngine(fields.NewHeuristics(), cache, NewSemantic(gen, zap.New(core), 0), nil)

	labels := []string{"Favourite colour", "Shoe size", "Preferred contact address"}
	out := engine.ResolveLabels(context.Background(), labels)

	require.Len(t, out, 3)
	for i, res := range out {
		assert.Equal(t, labels[i], res.Label)
		assert.Equal(t, fields.KeyUnknown, res.Key)
		assert.Zero(t, res.Confidence)
	}
	assert.Equal(t, 1, gen.Calls())
	assert.Zero(t, mem.Len())
	assert.Equal(t, 1, logs.FilterMessage("semantic resolution failed, treating batch as unknown").Len())
}

func TestMixedFormScenario(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{reply: replyWith(`[{"label":"Experience with the Microsoft stack (years)","key":"years_dotnet"}]`)}
	engine := newTestEngine(mem, gen)

	labels := []string{"Email Address", "Phone Number", "Experience with the Microsoft stack (years)"}
	out := engine.ResolveLabels(context.Background(), labels)

	require.Len(t, out, 3)
	assert.Equal(t, fields.KeyEmail, out[0].Key)
	assert.Equal(t, fields.KeyPhone, out[1].Key)
	assert.Contains(t, []fields.Key{fields.KeyYearsDotNet, fields.KeyUnknown}, out[2].Key)
	assert.Equal(t, 1, gen.Calls(), "only the unmatched label goes to the generator")
	assert.NotContains(t, gen.prompts[0], `"Email Address"`)
	assert.Contains(t, gen.prompts[0], `"Experience with the Microsoft stack (years)"`)

	if out[2].Key == fields.KeyYearsDotNet {
		assert.Equal(t, SemanticConfidence, out[2].Confidence)
	}
}

func TestSingleBatchAndDeduplication(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{reply: replyWith("```json\n[{\"label\":\"Preferred contact address\",\"key\":\"email\"},{\"label\":\"Injected label\",\"key\":\"phone\"}]\n```")}
	engine := newTestEngine(mem, gen)

	out := engine.ResolveLabels(context.Background(), []string{
		"Preferred contact address", "Shoe size", "Preferred contact address", "E-mail",
	})

	require.Len(t, out, 3)
	assert.Equal(t, "Preferred contact address", out[0].Label)
	assert.Equal(t, "Shoe size", out[1].Label)
	assert.Equal(t, "E-mail", out[2].Label)
	assert.Equal(t, 1, gen.Calls())
	assert.True(t, strings.Contains(gen.prompts[0], "Shoe size"))
	assert.False(t, strings.Contains(gen.prompts[0], `"E-mail"`), "heuristic matches stay out of the batch")

	_, ok := NewCache(mem, nil).Get(context.Background(), "Injected label")
	assert.False(t, ok, "labels that were not asked about are not persisted")
}

func TestEngineWithoutSemanticTier(t *testing.T) {
	engine := newTestEngine(store.NewMemory(), nil)

	out := engine.ResolveLabels(context.Background(), []string{"Shoe size"})
	require.Len(t, out, 1)
	assert.Equal(t, fields.Unresolved("Shoe size"), out[0])
}

func TestCachePutRules(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cache := NewCache(mem, nil)

	err := cache.Put(ctx, fields.Unresolved("Shoe size"), SourceSemantic)
	require.ErrorIs(t, err, ErrUnknownNotCached)
	assert.Zero(t, mem.Len())

	require.NoError(t, cache.Put(ctx, fields.LabelResolution{Label: "Contact", Key: fields.KeyEmail, Confidence: 0.95}, SourceHeuristic))
	require.NoError(t, cache.Put(ctx, fields.LabelResolution{Label: "CONTACT", Key: fields.KeyPhone, Confidence: 0.7}, SourceSemantic))

	got, ok := cache.Get(ctx, "contact")
	require.True(t, ok)
	assert.Equal(t, fields.KeyEmail, got.Key, "lower confidence must not overwrite higher")
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, []string{"label:contact"}, mem.Keys())
}

type failingStore struct{ store.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestCacheGetTreatsFailuresAsMiss(t *testing.T) {
	ctx := context.Background()

	_, ok := NewCache(failingStore{}, nil).Get(ctx, "Email")
	assert.False(t, ok)

	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, "label:email", []byte("{not json")))
	_, ok = NewCache(mem, nil).Get(ctx, "Email")
	assert.False(t, ok)

	require.NoError(t, mem.Put(ctx, "label:email", []byte(`{"key":"shoe_size","confidence":0.99}`)))
	_, ok = NewCache(mem, nil).Get(ctx, "Email")
	assert.False(t, ok)
}

func TestParseMappings(t *testing.T) {
	cases := map[string]string{
		"bare list":      `[{"label":"A","key":"email"}]`,
		"wrapped":        `{"results":[{"label":"A","key":"email"}]}`,
		"other wrapper":  `{"answer":[{"label":"A","key":"email"}]}`,
		"flat object":    `{"A":"email"}`,
		"flat nested":    `{"A":{"key":"email"}}`,
		"prose and json": "Here you go:\n[{\"label\":\"A\",\"key\":\"email\"}]\nThanks",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := parseMappings(raw)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, mapping{Label: "A", Key: "email"}, got[0])
		})
	}

	got, err := parseMappings(`{"A": 3}`)
	require.NoError(t, err)
	assert.Equal(t, []mapping{{Label: "A", Key: "3"}}, got)

	for _, raw := range []string{"", "not json", `"email"`, `[1, 2]`} {
		_, err := parseMappings(raw)
		assert.Error(t, err, raw)
	}
}

func TestReportedConfidence(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{nil, 0, false},
		{0.3, 0.3, true},
		{" 0.8 ", 0.8, true},
		{85.0, 0.85, true},
		{"high", 0, false},
		{-1.0, 0, false},
	}

	for _, tc := range cases {
		got, ok := mapping{Confidence: tc.in}.reportedConfidence()
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, "%v", tc.in)
	}
}

func TestSemanticDropsLowConfidenceMappings(t *testing.T) {
	mem := store.NewMemory()
	gen := &stubGenerator{reply: replyWith(`{"mappings":[
		{"label":"Preferred contact address","key":"email","confidence":"0.95"},
		{"label":"Home base","key":"city","confidence":0.2},
		{"label":"Shoe size","key":"salary_expectation","confidence":12}
	]}`)}
	engine := newTestEngine(mem, gen)

	out := engine.ResolveLabels(context.Background(), []string{"Preferred contact address", "Home base", "Shoe size"})

	require.Len(t, out, 3)
	assert.Equal(t, fields.KeyEmail, out[0].Key)
	assert.Equal(t, SemanticConfidence, out[0].Confidence)
	assert.Equal(t, fields.Unresolved("Home base"), out[1])
	assert.Equal(t, fields.Unresolved("Shoe size"), out[2], "12 is read as a percentage")
	assert.Equal(t, 1, mem.Len())
}

func TestSemanticFlatResponseWithOddValues(t *testing.T) {
	gen := &stubGenerator{reply: replyWith(`{"Preferred contact address":{"key":"email","confidence":0.9},"Shoe size":42,"Pet name":null}`)}
	engine := newTestEngine(store.NewMemory(), gen)

	out := engine.ResolveLabels(context.Background(), []string{"Preferred contact address", "Shoe size", "Pet name"})

	require.Len(t, out, 3)
	assert.Equal(t, fields.KeyEmail, out[0].Key)
	assert.Equal(t, fields.KeyUnknown, out[1].Key)
	assert.Equal(t, fields.KeyUnknown, out[2].Key)
}

func TestBuildPromptListsVocabulary(t *testing.T) {
	prompt := buildPrompt([]string{"Shoe size"})
	for _, k := range fields.Keys() {
		assert.Contains(t, prompt, "- "+k.String())
	}
	assert.Contains(t, prompt, "- unknown")
	assert.Contains(t, prompt, `"Shoe size"`)
	assert.NotContains(t, prompt, "{{")
}
