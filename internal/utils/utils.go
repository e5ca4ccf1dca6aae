package utils

import (
	"context"
	"strings"
	"time"
)

var after = time.After

// WaitFor blocks for d or until ctx is done.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(d):
		return nil
	}
}

// TruncateForLog flattens s onto one line and cuts it to limit runes,
// appending an ellipsis when something was dropped.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	flat := strings.Join(strings.Fields(s), " ")
	runes := []rune(flat)
	if len(runes) <= limit {
		return flat
	}
	return string(runes[:limit]) + "..."
}
