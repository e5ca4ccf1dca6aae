package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/ai"
	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/logger"
	"github.com/spigell/formfill/internal/utils"
)

// SemanticConfidence is assigned to every non-unknown semantic resolution.
// It sits exactly on TrustThreshold, so the cache tier does not trust it and
// the label is re-verified on later forms.
const SemanticConfidence = 0.7

const defaultMaxLogLength = 200

// A mapping the model itself rates below this is treated as unknown.
const minReportedConfidence = 0.5

//go:embed prompt.md
var promptTemplate string

// listMembers are tried first when the response wraps its list in an object.
var listMembers = []string{"mappings", "fields", "results", "labels", "data"}

type mapping struct {
	Label string `mapstructure:"label"`
	Key   string `mapstructure:"key"`
	// Confidence is optional and may arrive as a number or a string.
	Confidence any `mapstructure:"confidence"`
}

// reportedConfidence returns the model's own confidence on a 0..1 scale.
// Percentages are scaled down; absent or unparsable values report false.
func (m mapping) reportedConfidence() (float64, bool) {
	if m.Confidence == nil {
		return 0, false
	}
	c := ai.CoerceFloat(m.Confidence)
	if math.IsNaN(c) || c < 0 {
		return 0, false
	}
	if c > 1 {
		c /= 100
	}
	return c, true
}

// Semantic resolves a batch of labels with a single generator request.
type Semantic struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewSemantic(generator ai.Generator, log *zap.Logger, maxLogLength int) *Semantic {
	if log == nil {
		log = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if generator != nil {
		log = logger.WithFields(log, logger.CommonFields("", generator.Model())...)
	}
	return &Semantic{generator: generator, logger: log, maxLogLen: maxLogLength}
}

// Resolve returns one resolution per input label in input order. It never
// fails: an unreachable generator or an unusable response turns the whole
// batch into unknown with confidence 0.
func (s *Semantic) Resolve(ctx context.Context, labels []string) []fields.LabelResolution {
	if len(labels) == 0 {
		return nil
	}

	resolved, err := s.resolve(ctx, labels)
	if err != nil {
		s.logger.Warn("semantic resolution failed, treating batch as unknown",
			zap.Int("labels", len(labels)),
			zap.Error(err),
		)
		out := make([]fields.LabelResolution, len(labels))
		for i, label := range labels {
			out[i] = fields.Unresolved(label)
		}
		return out
	}

	return resolved
}

func (s *Semantic) resolve(ctx context.Context, labels []string) ([]fields.LabelResolution, error) {
	if s == nil || s.generator == nil {
		return nil, errors.New("semantic resolver has no generator")
	}

	prompt := buildPrompt(labels)
	s.logger.Debug("semantic resolution request",
		zap.Int("labels", len(labels)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("semantic resolution response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	mappings, err := parseMappings(raw)
	if err != nil {
		return nil, err
	}

	byLabel := make(map[string]fields.Key, len(mappings))
	for _, m := range mappings {
		norm := NormalizeLabel(m.Label)
		if norm == "" {
			continue
		}
		key, ok := fields.ParseKey(m.Key)
		if !ok {
			s.logger.Debug("discarding key outside the vocabulary",
				zap.String("label", m.Label),
				zap.String("key", m.Key),
			)
			key = fields.KeyUnknown
		}
		if c, ok := m.reportedConfidence(); ok && c < minReportedConfidence {
			s.logger.Debug("discarding low-confidence mapping",
				zap.String("label", m.Label),
				zap.String("key", m.Key),
				zap.Float64("reported_confidence", c),
			)
			key = fields.KeyUnknown
		}
		if _, seen := byLabel[norm]; !seen {
			byLabel[norm] = key
		}
	}

	out := make([]fields.LabelResolution, len(labels))
	for i, label := range labels {
		key, ok := byLabel[NormalizeLabel(label)]
		if !ok || !key.IsKnown() {
			out[i] = fields.Unresolved(label)
			continue
		}
		out[i] = fields.LabelResolution{Label: label, Key: key, Confidence: SemanticConfidence}
	}

	return out, nil
}

func buildPrompt(labels []string) string {
	var vocab strings.Builder
	for _, k := range fields.Keys() {
		fmt.Fprintf(&vocab, "- %s\n", k)
	}
	fmt.Fprintf(&vocab, "- %s\n", fields.KeyUnknown)

	quoted, _ := json.MarshalIndent(labels, "", "  ")

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Keys:\n{{VOCABULARY}}\nLabels:\n{{LABELS}}\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{VOCABULARY}}", strings.TrimRight(vocab.String(), "\n"))
	prompt = strings.ReplaceAll(prompt, "{{LABELS}}", string(quoted))
	return prompt
}

// parseMappings accepts a bare list of {label, key} objects, an object
// wrapping such a list, or an object mapping labels straight to keys.
func parseMappings(raw string) ([]mapping, error) {
	cleaned := ai.ExtractJSON(raw)
	if cleaned == "" {
		return nil, errors.New("empty semantic response")
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("parse semantic response: %w", err)
	}

	switch v := doc.(type) {
	case []any:
		return decodeList(v)
	case map[string]any:
		if list := wrappedList(v); list != nil {
			return decodeList(list)
		}
		return decodeFlat(v)
	default:
		return nil, fmt.Errorf("unexpected semantic response type %T", doc)
	}
}

func wrappedList(obj map[string]any) []any {
	for _, name := range listMembers {
		for k, v := range obj {
			if !strings.EqualFold(k, name) {
				continue
			}
			if list, ok := v.([]any); ok {
				return list
			}
		}
	}
	for _, v := range obj {
		if list, ok := v.([]any); ok {
			return list
		}
	}
	return nil
}

func decodeList(list []any) ([]mapping, error) {
	out := make([]mapping, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("semantic response item %d is %T, not an object", i, item)
		}

		m, err := decodeMapping(obj)
		if err != nil {
			return nil, fmt.Errorf("decode semantic response item %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// decodeFlat reads {"<label>": "<key>"} as well as
// {"<label>": {"key": "<key>", "confidence": 0.9}}. Other scalar values are
// kept as text and later fall outside the vocabulary.
func decodeFlat(obj map[string]any) ([]mapping, error) {
	out := make([]mapping, 0, len(obj))
	for label, v := range obj {
		if nested, ok := v.(map[string]any); ok {
			m, err := decodeMapping(nested)
			if err != nil {
				return nil, fmt.Errorf("decode semantic response value for %q: %w", label, err)
			}
			m.Label = label
			out = append(out, m)
			continue
		}
		out = append(out, mapping{Label: label, Key: ai.CoerceString(v)})
	}
	return out, nil
}

func decodeMapping(obj map[string]any) (mapping, error) {
	var m mapping
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return m, err
	}
	if err := decoder.Decode(obj); err != nil {
		return m, err
	}
	return m, nil
}
