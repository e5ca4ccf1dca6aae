package fields

import (
	"regexp"
	"strings"
)

// Rule is one entry of the ordered heuristic table.
type Rule struct {
	Pattern    *regexp.Regexp
	Key        Key
	Confidence float64
}

// sep matches the separators allowed between words of a multi-word concept.
const sep = `[\s\-_]*`

func rule(pattern string, key Key, confidence float64) Rule {
	pattern = strings.ReplaceAll(pattern, " ", sep)
	return Rule{Pattern: regexp.MustCompile(`(?i)` + pattern), Key: key, Confidence: confidence}
}

// defaultRules is evaluated first-match-wins. Narrow concepts come before the
// broader ones that would otherwise swallow them ("first name" before "name").
// Rules keyed to KeyUnknown stop the scan: their labels mention a known concept
// without asking for it.
var defaultRules = []Rule{
	rule(`\breloca`, KeyUnknown, 0),
	rule(`\bhow did you (hear|find|learn)\b|\breferr(al|ed)\b`, KeyUnknown, 0),
	rule(`\bfirst name\b|\bgiven name\b|\bforename\b`, KeyFirstName, 0.95),
	rule(`\blast name\b|\bsurname\b|\bfamily name\b`, KeyLastName, 0.95),
	rule(`\blinked in\b.*\b(profile|url|link|page)\b|\b(profile|url|link)\b.*\blinked in\b|^\s*linked in\s*\*?\s*$`, KeyLinkedInURL, 0.95),
	rule(`\be? mail\b`, KeyEmail, 0.95),
	rule(`\bphone\b|\bmobile\b|\bcell\b|\btelephone\b`, KeyPhone, 0.95),
	// A direct question about needing sponsorship wins over the work clause inside it.
	rule(`^\W*(will|do|would|does) you\b.*\b(require|need)\b.*\bsponsor`, KeyRequiresSponsorship, 0.9),
	// Asks about current status, even when it mentions sponsorship.
	rule(`\b(authori[sz]ed|eligible|permitted|allowed) to work\b|\bright to work\b`, KeyWorkAuthorization, 0.9),
	// Sponsorship only counts next to a requirement verb.
	rule(`\b(require[sd]?|requiring|need(s|ed)?|needing)\b.*\bsponsor|\bsponsor(ship)?\b.*\b(require[sd]?|needed)\b`, KeyRequiresSponsorship, 0.9),
	rule(`\bwork authori[sz]ation\b|\bwork permit\b`, KeyWorkAuthorization, 0.9),
	rule(`\.net\b|\bdot net\b|\bc#|\bcsharp\b`, KeyYearsDotNet, 0.9),
	rule(`\bazure\b`, KeyYearsAzure, 0.9),
	rule(`\bsalary\b|\bcompensation\b|\bpay expectations?\b`, KeySalaryExpectation, 0.9),
	rule(`\btime ?zone\b|\best\b|\bpst\b|\bus hours\b`, KeyUSTimezone, 0.9),
	rule(`\bwhy\b.*\b(fit|interested|join|role|us|company|work)\b|\bcover letter\b|\bmotivation\b`, KeyWhyFit, 0.9),
	rule(`\bcity\b|\bcurrent (location|address)\b|\bwhere are you (currently )?(based|located)\b|^\s*location\s*\*?\s*$`, KeyCity, 0.9),
	rule(`\bfull name\b|\blegal name\b|^\s*name\s*\*?\s*$|\byour name\b`, KeyFullName, 0.9),
}

// Heuristics is the ordered, stateless pattern tier.
type Heuristics struct {
	rules []Rule
}

// NewHeuristics returns the built-in rule table. Extra rules are tried first.
func NewHeuristics(extra ...Rule) *Heuristics {
	rules := make([]Rule, 0, len(extra)+len(defaultRules))
	rules = append(rules, extra...)
	rules = append(rules, defaultRules...)
	return &Heuristics{rules: rules}
}

// Match returns the first rule matching label.
func (h *Heuristics) Match(label string) (Key, float64, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return KeyUnknown, 0, false
	}

	for _, r := range h.rules {
		if !r.Pattern.MatchString(label) {
			continue
		}
		if !r.Key.IsKnown() {
			return KeyUnknown, 0, false
		}
		return r.Key, r.Confidence, true
	}

	return KeyUnknown, 0, false
}

// Rules exposes the ordered table.
func (h *Heuristics) Rules() []Rule {
	out := make([]Rule, len(h.rules))
	copy(out, h.rules)
	return out
}
