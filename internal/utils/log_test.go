package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "hello world",
			limit:  5,
			expect: "hello...",
		},
		{
			name:   "flattens prompts onto one line",
			input:  "Map labels:\n\n  - Email\n  - Phone\n",
			limit:  100,
			expect: "Map labels: - Email - Phone",
		},
		{
			name:   "counts runes after flattening",
			input:  "  résumé\tvariant  ",
			limit:  6,
			expect: "résumé...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	original := after
	defer func() { after = original }()

	fired := make(chan time.Time, 1)
	after = func(time.Duration) <-chan time.Time { return fired }

	fired <- time.Now()
	if err := WaitFor(context.Background(), time.Hour); err != nil {
		t.Fatalf("expected nil after the timer fires, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WaitFor(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for zero wait on a done context, got %v", err)
	}
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil for zero duration, got %v", err)
	}
}
