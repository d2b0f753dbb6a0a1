package preprocess

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
)

// AllowedTags are the BBCode tags Steam chat renders.
var AllowedTags = []string{
	"emoticon", "code", "pre", "img", "url", "spoiler", "quote", "random",
	"flip", "tradeofferlink", "tradeoffer", "sticker", "gameinvite", "og", "roomeffect",
}

// Node is a recognized BBCode tag.
type Node struct {
	Tag     string            `json:"tag"`
	Attrs   map[string]string `json:"attrs"`
	Content []Content         `json:"content"`
}

// Content is either plain text or a Node.
type Content struct {
	Text string
	Node *Node
}

// IsNode reports whether c holds a tag.
func (c Content) IsNode() bool { return c.Node != nil }

// MarshalJSON encodes text as a JSON string and nodes as objects.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Node != nil {
		return json.Marshal(c.Node)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		c.Node = nil
		return json.Unmarshal(b, &c.Text)
	}
	c.Text = ""
	c.Node = &Node{}
	return json.Unmarshal(b, c.Node)
}

// Parser splits text into plain runs and tags from an allow list.
type Parser struct {
	allowed []string
}

// NewParser creates a parser that recognizes only the given tags.
func NewParser(allowed []string) *Parser {
	return &Parser{allowed: allowed}
}

var defaultParser = NewParser(AllowedTags)

// ParseBBCode parses msg with Steam's tag set.
func ParseBBCode(msg string) []Content {
	return defaultParser.Parse(msg)
}

// Parse returns the fragments of msg. Unknown and closing tags stay in the
// surrounding text; adjacent text is merged. Empty input yields a single
// empty text fragment.
func (p *Parser) Parse(msg string) []Content {
	if msg == "" {
		return []Content{{Text: ""}}
	}

	var (
		out  []Content
		text strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			out = append(out, Content{Text: text.String()})
			text.Reset()
		}
	}

	rest := msg
	for rest != "" {
		start := strings.IndexByte(rest, '[')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], ']')
		if end < 0 {
			break
		}
		end += start

		text.WriteString(rest[:start])
		if node := p.parseTag(rest[start+1 : end]); node != nil {
			flush()
			out = append(out, Content{Node: node})
		} else {
			text.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	text.WriteString(rest)
	flush()

	return out
}

func (p *Parser) parseTag(body string) *Node {
	name, value, _ := strings.Cut(body, "=")
	name = strings.TrimSpace(name)
	if !slices.Contains(p.allowed, name) {
		return nil
	}

	attrs := map[string]string{}
	if v := strings.TrimSpace(value); v != "" {
		attrs["value"] = v
	}
	return &Node{Tag: name, Attrs: attrs}
}
