package browser

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/ats"
)

const formHTML = `<form id="f">
<label for="email">Email</label><input id="email" name="email">
<label><input type="radio" name="hours" value="y"> Yes</label>
<label><input type="radio" name="hours" value="n"> No</label>
<select id="auth"><option value="">Select</option><option>Yes</option><option>No</option></select>
<button type="submit">Apply</button>
</form>`

// Launching Chromium is opt-in.
func openTestPage(t *testing.T) *Page {
	t.Helper()
	if os.Getenv("FORMFILL_BROWSER_TESTS") == "" {
		t.Skip("set FORMFILL_BROWSER_TESTS=1 to run browser tests")
	}

	ctx := context.Background()
	b, err := Launch(ctx, Config{Headless: true, Timeout: 20 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	page, err := b.Open(ctx, "data:text/html,"+url.PathEscape(formHTML))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return page
}

func TestPageFieldsAndValues(t *testing.T) {
	page := openTestPage(t)
	ctx := context.Background()

	found, err := page.Fields(ctx, "#f")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 fields, got %+v", found)
	}
	if found[0].Label != "Email" || found[0].Selector != "#email" {
		t.Fatalf("unexpected email field: %+v", found[0])
	}
	if found[1].Kind != ats.KindRadio || len(found[1].Options) != 2 {
		t.Fatalf("unexpected radio field: %+v", found[1])
	}

	if err := page.SetValue(ctx, "#email", "jane@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}
	got, err := page.Value(ctx, "#email")
	if err != nil || got != "jane@example.com" {
		t.Fatalf("unexpected email value %q (%v)", got, err)
	}

	if err := page.SetValue(ctx, "#auth", "Yes"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := page.SetValue(ctx, found[1].Selector, "No"); err != nil {
		t.Fatalf("radio: %v", err)
	}

	n, err := page.Count(ctx, "button[type=submit]")
	if err != nil || n != 1 {
		t.Fatalf("expected one submit control, got %d (%v)", n, err)
	}
	if err := page.SetValue(ctx, "#missing", "x"); err == nil {
		t.Fatal("expected error for missing element")
	}
}
