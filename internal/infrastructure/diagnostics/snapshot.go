package diagnostics

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const redacted = "[redacted]"

type SnapshotConfig struct {
	TagsToRemove  []string
	AttrsToRemove []string
	// RedactTags have their value attribute and text content replaced.
	RedactTags    []string
	MaxOutputSize int
}

var DefaultSnapshotConfig = SnapshotConfig{
	TagsToRemove: []string{
		"script", "noscript", "iframe", "link", "meta",
	},
	AttrsToRemove: []string{
		"srcset", "sizes", "loading", "decoding", "fetchpriority", "nonce", "integrity",
	},
	RedactTags:    []string{"input", "textarea", "select"},
	MaxOutputSize: 2_000_000,
}

// SanitizeSnapshot prepares a DOM dump for disk: scripts and event handlers
// are dropped and anything a user may have typed is redacted. data-* and
// aria-* attributes stay since they are what locators target.
func SanitizeSnapshot(rawHTML string, cfg *SnapshotConfig) string {
	if cfg == nil {
		cfg = &DefaultSnapshotConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	cleanNode(doc, cfg)
	return truncateHTML(renderNode(doc), cfg.MaxOutputSize)
}

func cleanNode(n *html.Node, cfg *SnapshotConfig) {
	if n.Type == html.CommentNode {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}
	if n.Type == html.ElementNode {
		if isOneOf(n.Data, cfg.TagsToRemove...) {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return
		}
		n.Attr = filterAttributes(n, cfg)
		if n.Data == "textarea" && isOneOf("textarea", cfg.RedactTags...) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
					c.Data = redacted
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, cfg)
		c = next
	}
}

func filterAttributes(n *html.Node, cfg *SnapshotConfig) []html.Attribute {
	redact := isOneOf(n.Data, cfg.RedactTags...)
	var kept []html.Attribute
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if isOneOf(key, cfg.AttrsToRemove...) || strings.HasPrefix(key, "on") {
			continue
		}
		if redact && key == "value" {
			if attr.Val != "" {
				attr.Val = redacted
			}
		}
		kept = append(kept, attr)
	}
	return kept
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func truncateHTML(htmlStr string, maxSize int) string {
	if maxSize > 0 && len(htmlStr) > maxSize {
		return truncateUTF8(htmlStr, maxSize) + "\n<!-- snapshot truncated -->"
	}
	return htmlStr
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
