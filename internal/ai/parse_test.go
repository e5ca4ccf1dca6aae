package ai

import (
	"math"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "plain object", input: `{"a":1}`, expect: `{"a":1}`},
		{name: "code block", input: "```json\n[{\"a\":1}]\n```", expect: `[{"a":1}]`},
		{name: "prose around", input: "Here you go: {\"a\": 1} hope it helps", expect: `{"a": 1}`},
		{name: "no json", input: "nothing here", expect: "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	if got := CleanText("  \"I am a fit.\"  "); got != "I am a fit." {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := CleanText("```\nPlain answer\n```"); got != "Plain answer" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := CleanText("“Quoted”"); got != "Quoted" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	if CoerceFloat("0.8") != 0.8 {
		t.Fatal("expected string float to parse")
	}
	if !math.IsNaN(CoerceFloat("abc")) {
		t.Fatal("expected NaN for garbage")
	}
	if CoerceString(nil) != "" {
		t.Fatal("expected empty string for nil")
	}
	if CoerceString(42.0) != "42" {
		t.Fatalf("unexpected coerced value: %q", CoerceString(42.0))
	}
}
