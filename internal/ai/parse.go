package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractJSON strips markdown code fences and any prose around the outermost
// JSON array or object.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))

	start := strings.IndexAny(raw, "[{")
	if start <= 0 {
		return raw
	}

	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end < start {
		return raw
	}

	return raw[start : end+1]
}

// CleanText removes code fences and wrapping quotes from a free-text answer.
func CleanText(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	for _, q := range []string{`"`, "'", "“"} {
		closing := q
		if q == "“" {
			closing = "”"
		}
		if len(text) >= 2 && strings.HasPrefix(text, q) && strings.HasSuffix(text, closing) {
			text = strings.TrimSuffix(strings.TrimPrefix(text, q), closing)
			break
		}
	}

	return strings.TrimSpace(text)
}

func CoerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
