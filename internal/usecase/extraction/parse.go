package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"session-agent/internal/domain/entity"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

// parser turns a DOM snapshot into records according to one RecordSchema.
type parser struct {
	schema    entity.RecordSchema
	idPattern *regexp.Regexp
}

func newParser(schema entity.RecordSchema) (*parser, error) {
	if strings.TrimSpace(schema.Node) == "" {
		return nil, fmt.Errorf("%w: record node selector is empty", entity.ErrInvalidSelector)
	}
	p := &parser{schema: schema}
	if schema.IDPattern != "" {
		re, err := regexp.Compile(schema.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("record id pattern: %w", err)
		}
		p.idPattern = re
	}
	return p, nil
}

// parsed is one record node as found in a snapshot.
type parsed struct {
	entity.ExtractedRecord
	// alias keys the node by author and text only, so a node can be matched
	// with itself before and after its identity and time render.
	alias string
	// pending marks a node whose declared identity did not resolve. Its ID
	// holds the content key it falls back to.
	pending bool
}

// parse returns every record node in document order. Nodes with no identity,
// author or text are skipped.
func (p *parser) parse(raw string) ([]parsed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	var out []parsed
	doc.Find(p.schema.Node).Each(func(_ int, node *goquery.Selection) {
		rec := entity.ExtractedRecord{
			ID:        p.identity(node),
			Author:    p.author(node),
			Text:      collapse(pick(node, p.schema.Text).Text()),
			Timestamp: p.timestamp(node),
		}
		if rec.ID == "" && rec.Author == "" && rec.Text == "" {
			return
		}
		n := parsed{ExtractedRecord: rec, alias: entity.ContentKey(rec.Author, rec.Text, nil)}
		if rec.ID == "" {
			n.ID = entity.ContentKey(rec.Author, rec.Text, rec.Timestamp)
			n.pending = p.declaresIdentity()
		}
		out = append(out, n)
	})
	return out, nil
}

func (p *parser) declaresIdentity() bool {
	return p.schema.IDSelector != "" || p.schema.IDAttribute != ""
}

func (p *parser) identity(node *goquery.Selection) string {
	if !p.declaresIdentity() {
		return ""
	}
	sel := pick(node, p.schema.IDSelector)
	if sel.Length() == 0 {
		return ""
	}
	v := collapse(sel.Text())
	if p.schema.IDAttribute != "" {
		v = strings.TrimSpace(sel.AttrOr(p.schema.IDAttribute, ""))
	}
	if p.idPattern != nil && v != "" {
		m := p.idPattern.FindStringSubmatch(v)
		switch {
		case m == nil:
			return ""
		case len(m) > 1:
			return m[1]
		default:
			return m[0]
		}
	}
	return v
}

func (p *parser) author(node *goquery.Selection) string {
	sel := pick(node, p.schema.Author)
	if sel.Length() == 0 || p.schema.Author == "" {
		return ""
	}
	if p.schema.AuthorFirstRun {
		return firstTextRun(sel.Nodes[0])
	}
	return collapse(sel.Text())
}

func (p *parser) timestamp(node *goquery.Selection) *time.Time {
	if p.schema.Time == "" {
		return nil
	}
	sel := pick(node, p.schema.Time)
	if sel.Length() == 0 {
		return nil
	}
	v := collapse(sel.Text())
	if p.schema.TimeAttribute != "" {
		v = strings.TrimSpace(sel.AttrOr(p.schema.TimeAttribute, ""))
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

// pick resolves css inside node; empty css means the node itself.
func pick(node *goquery.Selection, css string) *goquery.Selection {
	if css == "" {
		return node
	}
	return node.Find(css).First()
}

// firstTextRun returns the first non-blank text node under n, which for a
// display-name/handle pair is the display name.
func firstTextRun(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return collapse(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := firstTextRun(c); s != "" {
			return s
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}
