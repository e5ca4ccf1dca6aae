package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/ats"
)

//go:embed fields.js
var fieldsScript string

// Page adapts a rod page to ats.Page. Every call is bounded by the browser
// timeout.
type Page struct {
	page    *rod.Page
	timeout time.Duration
	logger  *zap.Logger
}

var _ ats.Page = (*Page)(nil)

func (p *Page) scoped(ctx context.Context) (*rod.Page, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(callCtx), cancel
}

func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	page, cancel := p.scoped(ctx)
	defer cancel()

	els, err := page.Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", selector, err)
	}

	n := 0
	for _, el := range els {
		if ok, err := el.Visible(); err == nil && ok {
			n++
		}
	}
	return n, nil
}

func (p *Page) Fields(ctx context.Context, scope string) ([]ats.Field, error) {
	page, cancel := p.scoped(ctx)
	defer cancel()

	res, err := page.Eval(fieldsScript, scope)
	if err != nil {
		return nil, fmt.Errorf("listing form fields: %w", err)
	}

	var payload struct {
		Error  string      `json:"error"`
		Fields []ats.Field `json:"fields"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &payload); err != nil {
		return nil, fmt.Errorf("decoding form fields: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("listing form fields in %q: %s", scope, payload.Error)
	}
	return payload.Fields, nil
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	page, cancel := p.scoped(ctx)
	defer cancel()

	el, err := first(page, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", selector, err)
	}
	return v.Str(), nil
}

func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	page, cancel := p.scoped(ctx)
	defer cancel()

	el, err := first(page, selector)
	if err != nil {
		return err
	}

	kind, err := el.Eval(`() => this.tagName.toLowerCase() + ":" + (this.getAttribute("type") || "").toLowerCase()`)
	if err != nil {
		return fmt.Errorf("inspecting %q: %w", selector, err)
	}

	switch k := kind.Value.Str(); {
	case strings.HasPrefix(k, "select:"):
		if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("selecting %q in %q: %w", value, selector, err)
		}
	case k == "input:radio":
		return p.chooseRadio(page, selector, value)
	case k == "input:file":
		return fmt.Errorf("element %q is a file input", selector)
	default:
		if err := el.SelectAllText(); err != nil {
			return fmt.Errorf("clearing %q: %w", selector, err)
		}
		if err := el.Input(value); err != nil {
			return fmt.Errorf("typing into %q: %w", selector, err)
		}
	}
	return nil
}

func (p *Page) chooseRadio(page *rod.Page, selector, value string) error {
	radios, err := page.Elements(selector)
	if err != nil {
		return fmt.Errorf("query %q: %w", selector, err)
	}
	for _, r := range radios {
		res, err := r.Eval(`() => {
			const l = (this.id && document.querySelector('label[for="' + CSS.escape(this.id) + '"]')) || this.closest("label");
			return ((l && l.innerText) || this.value || "").replace(/\s+/g, " ").trim();
		}`)
		if err != nil {
			continue
		}
		if strings.EqualFold(res.Value.Str(), value) || strings.EqualFold(attr(r, "value"), value) {
			return r.Click(proto.InputMouseButtonLeft, 1)
		}
	}
	return fmt.Errorf("radio group %q has no option %q", selector, value)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	page, cancel := p.scoped(ctx)
	defer cancel()

	el, err := first(page, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	if err := page.WaitIdle(defaultIdleAfter); err != nil {
		p.logger.Debug("page did not settle after click", zap.String("selector", selector), zap.Error(err))
	}
	return nil
}

func (p *Page) Upload(ctx context.Context, selector, path string) error {
	page, cancel := p.scoped(ctx)
	defer cancel()

	el, err := first(page, selector)
	if err != nil {
		return err
	}
	if err := el.SetFiles([]string{path}); err != nil {
		return fmt.Errorf("uploading %s to %q: %w", path, selector, err)
	}
	return nil
}

func (p *Page) Close() error {
	return p.page.Close()
}

var errNotFound = errors.New("element not found")

// first returns the first element matching selector without waiting for it
// to appear.
func first(page *rod.Page, selector string) (*rod.Element, error) {
	ok, el, err := page.Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", errNotFound, selector)
	}
	return el, nil
}

func attr(el *rod.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}
