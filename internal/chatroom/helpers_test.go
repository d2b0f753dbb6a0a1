package chatroom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgard/scposter/internal/steamid"
)

func TestSteamIDHelpers(t *testing.T) {
	t.Parallel()

	id, err := ParseSteamID("[U:1:1531059355]")
	require.NoError(t, err)
	require.Equal(t, "[U:1:1531059355]", FormatSteamID(id))

	_, err = ParseSteamID("nope")
	require.ErrorIs(t, err, steamid.ErrInvalidSteamID)
}

func TestMessageHelpers(t *testing.T) {
	t.Parallel()

	ids := []steamid.ID{steamid.FromAccountID(1), steamid.FromAccountID(2)}
	require.Equal(t, "Hello @[U:1:1] @[U:1:2]", MessageWithMentions("Hello", ids))
	require.Equal(t, "Hello", MessageWithMentions("Hello", nil))
	require.Equal(t, "@all Hello", MessageWithAllMention("Hello"))
	require.Equal(t, "@here Hello", MessageWithHereMention("Hello"))
}
