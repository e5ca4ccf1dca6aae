package fields

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	// NarrativeMaxLength caps the generated "why fit" statement.
	NarrativeMaxLength = 400
	// DefaultSentenceMargin is how far below the cap a sentence end may sit and still be preferred.
	DefaultSentenceMargin = 120
)

// Policy constrains the value of one canonical key.
type Policy struct {
	MaxLength    int      `yaml:"max_length"`
	StripSymbols bool     `yaml:"strip_symbols"`
	Allowed      []string `yaml:"allowed"`
}

// Policies maps canonical keys to their policy. Keys without an entry are only whitespace-collapsed.
type Policies map[Key]Policy

// PolicyViolationError is returned when a value falls outside an enumerated policy.
type PolicyViolationError struct {
	Key     Key
	Value   string
	Allowed []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("value %q for %s is not one of %s", e.Value, e.Key, strings.Join(e.Allowed, ", "))
}

var yesNo = []string{"Yes", "No"}

// DefaultPolicies is the conservative built-in policy used when no policy file is configured.
func DefaultPolicies() Policies {
	return Policies{
		KeyWhyFit:              {MaxLength: NarrativeMaxLength, StripSymbols: true},
		KeySalaryExpectation:   {MaxLength: 60, StripSymbols: true},
		KeyCity:                {MaxLength: 100, StripSymbols: true},
		KeyFullName:            {MaxLength: 100, StripSymbols: true},
		KeyFirstName:           {MaxLength: 100, StripSymbols: true},
		KeyLastName:            {MaxLength: 100, StripSymbols: true},
		KeyWorkAuthorization:   {Allowed: yesNo},
		KeyRequiresSponsorship: {Allowed: yesNo},
		KeyUSTimezone:          {Allowed: yesNo},
	}
}

// LoadPolicies overlays the YAML policy file at path on top of DefaultPolicies.
// An empty path or a missing file yields the defaults.
func LoadPolicies(path string) (Policies, error) {
	policies := DefaultPolicies()

	path = strings.TrimSpace(path)
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return policies, nil
		}
		return nil, fmt.Errorf("reading policy file %q: %w", path, err)
	}

	var raw map[string]Policy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing policy file %q: %w", path, err)
	}

	for name, p := range raw {
		key, ok := ParseKey(name)
		if !ok || key == KeyUnknown {
			return nil, fmt.Errorf("policy file %q: unknown field %q", path, name)
		}
		if p.MaxLength < 0 {
			return nil, fmt.Errorf("policy file %q: negative max_length for %q", path, name)
		}
		policies[key] = p
	}

	return policies, nil
}

// Sanitize returns a copy of answers where every value satisfies its policy.
func (p Policies) Sanitize(answers AnswerSet) (AnswerSet, error) {
	out := make(AnswerSet, len(answers))

	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	for _, name := range keys {
		key := Key(name)
		value, err := p.SanitizeValue(key, answers[key])
		if err != nil {
			return nil, err
		}
		out[key] = value
	}

	return out, nil
}

// SanitizeValue applies the policy of key to a single value.
func (p Policies) SanitizeValue(key Key, value string) (string, error) {
	policy, ok := p[key]

	if ok && policy.StripSymbols {
		value = StripDecorative(value)
	}
	value = CollapseWhitespace(value)

	if !ok {
		return value, nil
	}

	if policy.MaxLength > 0 {
		value = Truncate(value, policy.MaxLength, DefaultSentenceMargin)
	}

	if len(policy.Allowed) > 0 && value != "" {
		for _, allowed := range policy.Allowed {
			if strings.EqualFold(value, allowed) {
				return allowed, nil
			}
		}
		return "", &PolicyViolationError{Key: key, Value: value, Allowed: policy.Allowed}
	}

	return value, nil
}

// CollapseWhitespace trims s and folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripDecorative removes emoji, pictographs, bullets and similar symbols.
func StripDecorative(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.Is(unicode.So, r):
			return -1
		case r >= 0x2022 && r <= 0x2027, r == 0x25AA, r == 0x25CF, r == 0x25BA, r == 0x2713, r == 0x2714:
			return -1
		case r == 0xFE0F || r == 0x200D:
			return -1
		case unicode.Is(unicode.Co, r):
			return -1
		}
		return r
	}, s)
}

// Truncate shortens s to at most limit runes. It cuts after the last sentence end
// that lies within margin runes of the cap, otherwise at the last word boundary,
// otherwise hard.
func Truncate(s string, limit, margin int) string {
	runes := []rune(strings.TrimSpace(s))
	if limit <= 0 || len(runes) <= limit {
		return string(runes)
	}

	window := runes[:limit]

	// A sentence end is a terminator followed by whitespace or by the end of the text.
	for i := len(window) - 1; i >= 0 && i >= limit-margin-1; i-- {
		if !isSentenceEnd(window[i]) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		return strings.TrimSpace(string(window[:i+1]))
	}

	if !unicode.IsSpace(runes[limit]) {
		for i := len(window) - 1; i > 0; i-- {
			if unicode.IsSpace(window[i]) {
				return strings.TrimRightFunc(string(window[:i]), trimTail)
			}
		}
		return string(window)
	}

	return strings.TrimRightFunc(string(window), trimTail)
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func trimTail(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '-'
}
