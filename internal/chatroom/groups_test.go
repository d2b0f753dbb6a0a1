package chatroom

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMyChatRooms(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMyChatRoomGroups", func(url.Values) (any, error) {
		return map[string]any{
			"chat_room_groups": []any{
				map[string]any{"group_summary": map[string]any{
					"chat_group_id":   "37338",
					"default_chat_id": "8194042",
					"chat_group_name": "Poster Club",
				}},
				map[string]any{"user_chat_group_state": map[string]any{}},
			},
		}, nil
	})

	rooms, err := newTestClient(conn).MyChatRooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []RoomInfo{{
		ChatGroupID:   37338,
		ChatID:        8194042,
		ChatName:      "Poster Club",
		ChatGroupName: "Poster Club",
		IsJoined:      true,
	}}, rooms)
}

func TestJoinChatRoom(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/JoinChatRoomGroup", func(p url.Values) (any, error) {
		return map[string]any{"state": map[string]any{
			"members": []any{map[string]any{"accountid": 1}, map[string]any{"accountid": 2}},
			"chat_rooms": []any{
				map[string]any{"chat_id": "11", "chat_name": "general"},
				map[string]any{"chat_id": "12", "chat_name": "memes"},
			},
			"header_state": map[string]any{"chat_group_id": "5", "chat_name": "Group", "default_chat_id": "11"},
		}}, nil
	})

	state, err := newTestClient(conn).JoinChatRoom(context.Background(), 5, 11, "ABCD-1234")
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.ChatGroupID)
	require.Equal(t, uint64(11), state.DefaultChatID)
	require.Equal(t, 2, state.MemberCount)
	require.Len(t, state.Rooms, 2)
	require.Equal(t, "memes", state.Rooms[1].ChatName)

	calls := conn.callsTo("IChatRoomService/JoinChatRoomGroup")
	require.Len(t, calls, 1)
	require.Equal(t, "ABCD-1234", calls[0].Get("invite_code"))
}

func TestJoinChatRoom_NoInviteCode(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/JoinChatRoomGroup", func(url.Values) (any, error) {
		return map[string]any{"state": map[string]any{}}, nil
	})

	state, err := newTestClient(conn).Groups().JoinChatRoom(context.Background(), 5, 11, "")
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.ChatGroupID)
	require.False(t, conn.callsTo("IChatRoomService/JoinChatRoomGroup")[0].Has("invite_code"))
}

func TestLeaveAndState(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/LeaveChatRoomGroup", func(url.Values) (any, error) { return map[string]any{}, nil })
	conn.handle("IChatRoomService/GetChatRoomGroupState", func(url.Values) (any, error) {
		return map[string]any{"state": map[string]any{"chat_group_id": "9", "default_chat_id": "90"}}, nil
	})

	c := newTestClient(conn)
	require.NoError(t, c.LeaveChatRoom(context.Background(), 9))
	require.Equal(t, "9", conn.callsTo("IChatRoomService/LeaveChatRoomGroup")[0].Get("chat_group_id"))

	state, err := c.ChatRoomState(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, uint64(90), state.DefaultChatID)
}
