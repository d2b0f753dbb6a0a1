package preprocess

import (
	"strings"

	"github.com/edgard/scposter/internal/steamid"
)

// BBCode formatting kinds accepted by FormatWithBBCode.
const (
	TypeSpoiler  = "spoiler"
	TypeCode     = "code"
	TypeURL      = "url"
	TypeEmoticon = "emoticon"
)

type formatter func(msg, value string) string

var formatters = map[string]formatter{
	TypeSpoiler:  func(msg, _ string) string { return "[spoiler]" + msg + "[/spoiler]" },
	TypeCode:     func(msg, _ string) string { return "[code]" + msg + "[/code]" },
	TypeURL:      func(msg, value string) string { return "[url=" + value + "]" + msg + "[/url]" },
	TypeEmoticon: func(_, value string) string { return "[emoticon:" + value + "]" },
}

// FormatWithBBCode wraps msg in the tag for kind. Unknown kinds return msg unchanged.
func FormatWithBBCode(msg, kind, value string) string {
	if f, ok := formatters[kind]; ok {
		return f(msg, value)
	}
	return msg
}

// CreateMention renders a direct mention of id.
func CreateMention(id steamid.ID) string {
	return "@" + id.Steam3()
}

// AllMention returns the token that pings the whole group.
func AllMention() string { return MentionAll }

// HereMention returns the token that pings online members.
func HereMention() string { return MentionHere }

// HasMentions is a cheap check for a possible mention.
func HasMentions(msg string) bool {
	return strings.Contains(msg, "@")
}
