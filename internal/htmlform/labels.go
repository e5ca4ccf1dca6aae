package htmlform

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/fields"
)

func kindOf(s *goquery.Selection) ats.FieldKind {
	switch goquery.NodeName(s) {
	case "select":
		return ats.KindSelect
	case "textarea":
		return ats.KindTextarea
	case "input":
	default:
		return ""
	}

	switch strings.ToLower(s.AttrOr("type", "text")) {
	case "hidden", "submit", "button", "image", "reset":
		return ""
	case "radio":
		return ats.KindRadio
	case "checkbox":
		return ats.KindCheckbox
	case "file":
		return ats.KindFile
	default:
		return ats.KindText
	}
}

func selectorOf(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	if id, ok := s.Attr("id"); ok && id != "" {
		if simpleID.MatchString(id) {
			return "#" + id
		}
		return fmt.Sprintf(`%s[id=%q]`, tag, id)
	}
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	return ""
}

// labelOf finds the human-readable label of a control: an explicit
// label[for], an enclosing label, aria-label, placeholder, then name.
func (p *Page) labelOf(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		if text := labelText(p.doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First()); text != "" {
			return text
		}
	}
	if text := labelText(s.Closest("label")); text != "" {
		return text
	}
	if ref, ok := s.Attr("aria-labelledby"); ok && ref != "" {
		var parts []string
		for _, id := range strings.Fields(ref) {
			if text := fields.CollapseWhitespace(p.doc.Find(fmt.Sprintf(`[id=%q]`, id)).Text()); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	for _, attr := range []string{"aria-label", "placeholder", "name"} {
		if v := fields.CollapseWhitespace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// optionLabel is the visible text of one radio button.
func (p *Page) optionLabel(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		if text := labelText(p.doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First()); text != "" {
			return text
		}
	}
	if text := labelText(s.Closest("label")); text != "" {
		return text
	}
	return s.AttrOr("value", "")
}

// groupLabel labels a radio group by its fieldset legend, falling back to the
// group name.
func groupLabel(s *goquery.Selection, name string) string {
	if legend := fields.CollapseWhitespace(s.Closest("fieldset").Find("legend").First().Text()); legend != "" {
		return legend
	}
	return name
}

// labelText returns the text of a label without the text of controls nested in it.
func labelText(label *goquery.Selection) string {
	if label.Length() == 0 {
		return ""
	}
	clone := label.Clone()
	clone.Find("select, textarea, option").Remove()
	return fields.CollapseWhitespace(clone.Text())
}

func required(s *goquery.Selection) bool {
	if _, ok := s.Attr("required"); ok {
		return true
	}
	return strings.EqualFold(s.AttrOr("aria-required", ""), "true")
}

func hasOption(s *goquery.Selection, value string) bool {
	found := false
	s.Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
		found = strings.EqualFold(fields.CollapseWhitespace(o.Text()), value) ||
			strings.EqualFold(o.AttrOr("value", ""), value)
		return !found
	})
	return found
}

func isSubmit(s *goquery.Selection) bool {
	t := strings.ToLower(s.AttrOr("type", ""))
	switch goquery.NodeName(s) {
	case "button":
		// A button without a type submits its form.
		return t == "submit" || (t == "" && s.Closest("form").Length() > 0 && s.Closest("[data-step]").Length() == 0)
	case "input":
		return t == "submit" || t == "image"
	}
	return false
}
