package diagnostics

import (
	"strings"

	"session-agent/internal/domain/entity"

	"github.com/PuerkitoBio/goquery"
)

const (
	inventorySelector = "input, textarea, select, button, [role='button'], [role='textbox'], [data-testid]"
	maxInventory      = 200
	maxFieldText      = 80
)

// Inventory lists the interactive and test-id carrying elements of a snapshot,
// enough to rewrite a broken locator without reopening the page.
func Inventory(rawHTML string) []entity.FieldSummary {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var result []entity.FieldSummary
	doc.Find(inventorySelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(result) >= maxInventory {
			return false
		}
		if hidden(s) {
			return true
		}
		tag := goquery.NodeName(s)
		f := entity.FieldSummary{
			Tag:          tag,
			Type:         s.AttrOr("type", ""),
			Name:         s.AttrOr("name", ""),
			Autocomplete: s.AttrOr("autocomplete", ""),
			TestID:       s.AttrOr("data-testid", ""),
			Role:         s.AttrOr("role", ""),
		}
		if tag != "input" && tag != "textarea" && tag != "select" {
			f.Text = firstNonEmpty(s.AttrOr("aria-label", ""), collapse(s.Text()))
		}
		f.Text = truncateUTF8(f.Text, maxFieldText)
		result = append(result, f)
		return true
	})
	return result
}

func hidden(s *goquery.Selection) bool {
	if strings.EqualFold(s.AttrOr("type", ""), "hidden") {
		return true
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
