// Package sanitize reduces chat text to plain text safe to forward.
package sanitize

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	blockTags  = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?li>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// Policy represents a sanitization policy for text content
type Policy struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewPlainTextPolicy creates a Policy that strips HTML and markdown.
func NewPlainTextPolicy() *Policy {
	return &Policy{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

// SanitizeText strips HTML and markdown from the input text. Block-level
// elements become line breaks.
func (p *Policy) SanitizeText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(text), &buf); err != nil {
		return text
	}

	htmlText := blockTags.ReplaceAllString(buf.String(), "\n")
	sanitized := p.policy.Sanitize(htmlText)
	sanitized = blankLines.ReplaceAllString(sanitized, "\n\n")
	sanitized = html.UnescapeString(sanitized)

	return strings.TrimSpace(sanitized)
}
