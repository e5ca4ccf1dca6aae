// Package htmlform is an offline ats.Page over a saved HTML document. It
// records every value, click and upload instead of touching a live site.
package htmlform

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/fields"
)

const controls = "input, select, textarea"

var simpleID = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Page implements ats.Page. Containers carrying a data-step attribute are
// treated as pages of a multi-step form: only the current one is visible and
// clicking a non-submit control inside it advances to the next.
type Page struct {
	url string
	doc *goquery.Document

	mu        sync.Mutex
	step      int
	steps     int
	values    map[string]string
	uploads   map[string]string
	clicks    []string
	submitted bool
}

var _ ats.Page = (*Page)(nil)

// Parse reads an HTML document served from pageURL.
func Parse(pageURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{
		url:     pageURL,
		doc:     doc,
		steps:   doc.Find("[data-step]").Length(),
		values:  make(map[string]string),
		uploads: make(map[string]string),
	}, nil
}

// Open parses the saved document at path.
func Open(path, pageURL string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html form: %w", err)
	}
	defer f.Close()
	return Parse(pageURL, f)
}

func (p *Page) URL() string { return p.url }

func (p *Page) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(selector).Length(), nil
}

func (p *Page) Fields(_ context.Context, scope string) ([]ats.Field, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root := p.doc.Selection
	if strings.TrimSpace(scope) != "" {
		root = p.find(scope).First()
		if root.Length() == 0 {
			return nil, fmt.Errorf("form scope %q not found", scope)
		}
	}

	var out []ats.Field
	radios := make(map[string]int)

	root.Find(controls).Each(func(_ int, s *goquery.Selection) {
		if !p.visible(s) {
			return
		}

		kind := kindOf(s)
		if kind == "" {
			return
		}

		if kind == ats.KindRadio {
			name, _ := s.Attr("name")
			if name == "" {
				return
			}
			option := p.optionLabel(s)
			if idx, ok := radios[name]; ok {
				out[idx].Options = append(out[idx].Options, option)
				return
			}
			radios[name] = len(out)
			out = append(out, ats.Field{
				Label:    groupLabel(s, name),
				Selector: fmt.Sprintf(`input[type=radio][name=%q]`, name),
				Kind:     ats.KindRadio,
				Required: required(s),
				Options:  []string{option},
			})
			return
		}

		selector := selectorOf(s)
		if selector == "" {
			return
		}
		field := ats.Field{
			Label:    p.labelOf(s),
			Selector: selector,
			Kind:     kind,
			Required: required(s),
		}
		if kind == ats.KindSelect {
			s.Find("option").Each(func(_ int, o *goquery.Selection) {
				text := fields.CollapseWhitespace(o.Text())
				if v, _ := o.Attr("value"); v == "" && text == "" {
					return
				}
				field.Options = append(field.Options, text)
			})
		}
		out = append(out, field)
	})

	return out, nil
}

func (p *Page) Value(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.values[selector]; ok {
		return v, nil
	}
	s := p.find(selector).First()
	if s.Length() == 0 {
		return "", fmt.Errorf("element %q not found", selector)
	}
	switch goquery.NodeName(s) {
	case "textarea":
		return s.Text(), nil
	case "select":
		return fields.CollapseWhitespace(s.Find("option[selected]").First().Text()), nil
	default:
		return s.AttrOr("value", ""), nil
	}
}

func (p *Page) SetValue(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.find(selector)
	if s.Length() == 0 {
		return fmt.Errorf("element %q not found", selector)
	}

	switch kindOf(s.First()) {
	case ats.KindSelect:
		if !hasOption(s.First(), value) {
			return fmt.Errorf("select %q has no option %q", selector, value)
		}
	case ats.KindRadio:
		found := false
		s.EachWithBreak(func(_ int, r *goquery.Selection) bool {
			found = strings.EqualFold(p.optionLabel(r), value) || strings.EqualFold(r.AttrOr("value", ""), value)
			return !found
		})
		if !found {
			return fmt.Errorf("radio group %q has no option %q", selector, value)
		}
	case ats.KindFile:
		return fmt.Errorf("element %q is a file input", selector)
	}

	p.values[selector] = value
	return nil
}

func (p *Page) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.find(selector).First()
	if s.Length() == 0 {
		return fmt.Errorf("element %q not found", selector)
	}
	p.clicks = append(p.clicks, selector)

	if isSubmit(s) {
		p.submitted = true
		return nil
	}
	if s.Closest("[data-step]").Length() > 0 && p.step < p.steps-1 {
		p.step++
	}
	return nil
}

func (p *Page) Upload(_ context.Context, selector, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.find(selector).First()
	if s.Length() == 0 {
		return fmt.Errorf("element %q not found", selector)
	}
	if kindOf(s) != ats.KindFile {
		return fmt.Errorf("element %q is not a file input", selector)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("resume file: %w", err)
	}
	p.uploads[selector] = path
	return nil
}

// Values returns a copy of every value set so far, keyed by selector.
func (p *Page) Values() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func (p *Page) Uploads() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.uploads))
	for k, v := range p.uploads {
		out[k] = v
	}
	return out
}

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Submitted reports whether a submit control was clicked.
func (p *Page) Submitted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

func (p *Page) find(selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return p.doc.FindNodes()
	}
	return p.doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return p.visible(s)
	})
}

func (p *Page) visible(s *goquery.Selection) bool {
	if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
		return false
	}
	hidden := false
	s.ParentsUntil("html").AddSelection(s).Each(func(_ int, n *goquery.Selection) {
		if _, ok := n.Attr("hidden"); ok {
			hidden = true
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			hidden = true
		}
	})
	if hidden {
		return false
	}

	step := s.Closest("[data-step]")
	if step.Length() == 0 {
		return true
	}
	return p.doc.Find("[data-step]").IndexOfSelection(step) == p.step
}
