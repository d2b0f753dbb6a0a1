package chatroom

import (
	"strings"

	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steamid"
)

// FormatSteamID renders id in steam3 form.
func FormatSteamID(id steamid.ID) string {
	return id.Steam3()
}

// ParseSteamID accepts steam3 or steam64 text.
func ParseSteamID(s string) (steamid.ID, error) {
	return steamid.Parse(s)
}

// MessageWithMentions appends a mention of each id to msg.
func MessageWithMentions(msg string, ids []steamid.ID) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, id := range ids {
		b.WriteString(" ")
		b.WriteString(preprocess.CreateMention(id))
	}
	return b.String()
}

// MessageWithAllMention prefixes msg with @all.
func MessageWithAllMention(msg string) string {
	return preprocess.MentionAll + " " + msg
}

// MessageWithHereMention prefixes msg with @here.
func MessageWithHereMention(msg string) string {
	return preprocess.MentionHere + " " + msg
}
