// Package preprocess parses Steam chat messages into BBCode fragments and
// mention sets, and prepares outgoing text.
package preprocess

import (
	"strings"

	"github.com/edgard/scposter/internal/steamid"
)

const (
	// MentionAll pings every member of the group.
	MentionAll = "@all"
	// MentionHere pings members currently online.
	MentionHere = "@here"

	mentionPunctuation = "!?,.;"
)

// Mentions lists who a message pings.
type Mentions struct {
	All      bool         `json:"mention_all"`
	Here     bool         `json:"mention_here"`
	SteamIDs []steamid.ID `json:"mention_steamids"`
}

// Any reports whether at least one mention is present.
func (m *Mentions) Any() bool {
	return m != nil && (m.All || m.Here || len(m.SteamIDs) > 0)
}

// Includes reports whether id is mentioned directly.
func (m *Mentions) Includes(id steamid.ID) bool {
	if m == nil {
		return false
	}
	for _, s := range m.SteamIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Message is a chat message with its parsed structure. ServerTimestamp and
// Ordinal are nil until Steam has acknowledged the message.
type Message struct {
	OriginalMessage string    `json:"original_message"`
	ModifiedMessage string    `json:"modified_message"`
	Parsed          []Content `json:"message_bbcode_parsed"`
	Mentions        *Mentions `json:"mentions"`
	ServerTimestamp *uint32   `json:"server_timestamp"`
	Ordinal         *uint32   `json:"ordinal"`
}

// Identified reports whether the message carries both server timestamp and
// ordinal, which deletion requires.
func (m Message) Identified() bool {
	return m.ServerTimestamp != nil && m.Ordinal != nil
}

// Preprocess parses msg without server metadata.
func Preprocess(msg string) Message {
	return Message{
		OriginalMessage: msg,
		ModifiedMessage: msg,
		Parsed:          ParseBBCode(msg),
		Mentions:        ExtractMentions(msg),
	}
}

// ExtractMentions finds @all, @here and user mentions, written either bare
// as [U:1:n] or as CreateMention writes them, @[U:1:n]. It returns nil when
// the message mentions nobody.
func ExtractMentions(msg string) *Mentions {
	m := &Mentions{}
	for _, token := range strings.Fields(msg) {
		token = strings.Trim(token, mentionPunctuation)
		switch {
		case token == MentionAll:
			m.All = true
		case token == MentionHere:
			m.Here = true
		case strings.HasPrefix(strings.TrimPrefix(token, "@"), "[U:1:") && strings.HasSuffix(token, "]"):
			if id, err := steamid.ParseSteam3(strings.TrimPrefix(token, "@")); err == nil {
				m.SteamIDs = append(m.SteamIDs, id)
			}
		}
	}
	if !m.Any() {
		return nil
	}
	return m
}

// PrepareForSending unescapes bracketed BBCode written as \[ and \].
func PrepareForSending(msg string) string {
	return strings.NewReplacer(`\[`, "[", `\]`, "]").Replace(msg)
}

// ProcessResponse builds a Message from what Steam echoed back. An ordinal
// of zero is a valid position and is kept.
func ProcessResponse(original, modified string, serverTimestamp, ordinal uint32) Message {
	return Message{
		OriginalMessage: original,
		ModifiedMessage: modified,
		Parsed:          ParseBBCode(modified),
		Mentions:        ExtractMentions(modified),
		ServerTimestamp: &serverTimestamp,
		Ordinal:         &ordinal,
	}
}
