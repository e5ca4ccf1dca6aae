package fields

import (
	"strings"
)

// Key identifies one logical applicant attribute a form field can ask for.
type Key string

const (
	KeyFullName            Key = "full_name"
	KeyFirstName           Key = "first_name"
	KeyLastName            Key = "last_name"
	KeyEmail               Key = "email"
	KeyPhone               Key = "phone"
	KeyCity                Key = "city"
	KeyWorkAuthorization   Key = "work_authorization"
	KeyRequiresSponsorship Key = "requires_sponsorship"
	KeyYearsDotNet         Key = "years_dotnet"
	KeyYearsAzure          Key = "years_azure"
	KeyLinkedInURL         Key = "linkedin_url"
	KeySalaryExpectation   Key = "salary_expectation"
	KeyUSTimezone          Key = "us_timezone"
	KeyWhyFit              Key = "why_fit"

	// KeyUnknown marks a label without a confident match. It is never cached.
	KeyUnknown Key = "unknown"
)

var vocabulary = []Key{
	KeyFullName,
	KeyFirstName,
	KeyLastName,
	KeyEmail,
	KeyPhone,
	KeyCity,
	KeyWorkAuthorization,
	KeyRequiresSponsorship,
	KeyYearsDotNet,
	KeyYearsAzure,
	KeyLinkedInURL,
	KeySalaryExpectation,
	KeyUSTimezone,
	KeyWhyFit,
}

// Keys returns the canonical vocabulary in a stable order, without KeyUnknown.
func Keys() []Key {
	out := make([]Key, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// ParseKey maps s onto the vocabulary. Surrounding whitespace, case and
// hyphen/space separators are tolerated. KeyUnknown parses as valid.
func ParseKey(s string) (Key, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	if Key(normalized) == KeyUnknown {
		return KeyUnknown, true
	}

	for _, k := range vocabulary {
		if Key(normalized) == k {
			return k, true
		}
	}

	return KeyUnknown, false
}

func (k Key) String() string { return string(k) }

// IsKnown reports whether k is a member of the vocabulary other than KeyUnknown.
func (k Key) IsKnown() bool {
	if k == KeyUnknown {
		return false
	}
	_, ok := ParseKey(string(k))
	return ok
}

// LabelResolution binds a raw form label to a canonical key.
type LabelResolution struct {
	Label      string  `json:"label"`
	Key        Key     `json:"key"`
	Confidence float64 `json:"confidence"`
}

// Unresolved returns the resolution used when nothing matched label.
func Unresolved(label string) LabelResolution {
	return LabelResolution{Label: label, Key: KeyUnknown, Confidence: 0}
}

// AnswerSet holds the values for one job application.
type AnswerSet map[Key]string

// Get returns the value for k. KeyUnknown and empty values are reported as absent.
func (a AnswerSet) Get(k Key) (string, bool) {
	if k == KeyUnknown || a == nil {
		return "", false
	}
	v, ok := a[k]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
