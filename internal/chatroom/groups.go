package chatroom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/samber/lo"

	"github.com/edgard/scposter/internal/steam"
)

// Groups lists, joins and leaves chat room groups.
type Groups struct {
	c *Client
}

type groupSummaryJSON struct {
	ChatGroupID   steam.Uint64 `json:"chat_group_id"`
	DefaultChatID steam.Uint64 `json:"default_chat_id"`
	ChatGroupName string       `json:"chat_group_name"`
}

type chatRoomStateJSON struct {
	ChatID   steam.Uint64 `json:"chat_id"`
	ChatName string       `json:"chat_name"`
}

type groupStateJSON struct {
	ChatGroupID   steam.Uint64        `json:"chat_group_id"`
	DefaultChatID steam.Uint64        `json:"default_chat_id"`
	ChatRooms     []chatRoomStateJSON `json:"chat_rooms"`
	Members       []memberJSON        `json:"members"`
	HeaderState   struct {
		ChatGroupID   steam.Uint64 `json:"chat_group_id"`
		ChatName      string       `json:"chat_name"`
		DefaultChatID steam.Uint64 `json:"default_chat_id"`
	} `json:"header_state"`
}

type memberJSON struct {
	AccountID uint32 `json:"accountid"`
}

type groupPairJSON struct {
	Summary *groupSummaryJSON `json:"group_summary"`
}

func uintParam(v uint64) string { return strconv.FormatUint(v, 10) }

// MyChatRooms returns one entry per group the account belongs to, pointing
// at the group's default chat.
func (g Groups) MyChatRooms(ctx context.Context) ([]RoomInfo, error) {
	var resp struct {
		Groups []groupPairJSON `json:"chat_room_groups"`
	}
	if err := g.c.conn.Call(ctx, steam.Get(chatRoomService, "GetMyChatRoomGroups", nil), &resp); err != nil {
		return nil, fmt.Errorf("get my chat room groups: %w", err)
	}

	rooms := lo.FilterMap(resp.Groups, func(pair groupPairJSON, _ int) (RoomInfo, bool) {
		if pair.Summary == nil {
			return RoomInfo{}, false
		}
		return RoomInfo{
			ChatGroupID:   uint64(pair.Summary.ChatGroupID),
			ChatID:        uint64(pair.Summary.DefaultChatID),
			ChatName:      pair.Summary.ChatGroupName,
			ChatGroupName: pair.Summary.ChatGroupName,
			IsJoined:      true,
		}, true
	})
	return rooms, nil
}

// JoinChatRoom joins a group. inviteCode may be empty for public groups.
func (g Groups) JoinChatRoom(ctx context.Context, group, chat uint64, inviteCode string) (GroupState, error) {
	params := url.Values{
		"chat_group_id": {uintParam(group)},
		"chat_id":       {uintParam(chat)},
	}
	if inviteCode != "" {
		params.Set("invite_code", inviteCode)
	}

	var resp struct {
		State groupStateJSON `json:"state"`
	}
	if err := g.c.conn.Call(ctx, steam.Post(chatRoomService, "JoinChatRoomGroup", params), &resp); err != nil {
		return GroupState{}, fmt.Errorf("join chat room group %d: %w", group, err)
	}

	g.c.logger.InfoContext(ctx, "Joined chat room group", "chat_group_id", group, "chat_id", chat)
	return resp.State.toGroupState(group), nil
}

// LeaveChatRoom leaves a group.
func (g Groups) LeaveChatRoom(ctx context.Context, group uint64) error {
	params := url.Values{"chat_group_id": {uintParam(group)}}
	if err := g.c.conn.Call(ctx, steam.Post(chatRoomService, "LeaveChatRoomGroup", params), nil); err != nil {
		return fmt.Errorf("leave chat room group %d: %w", group, err)
	}
	g.c.logger.InfoContext(ctx, "Left chat room group", "chat_group_id", group)
	return nil
}

// ChatRoomState fetches the current state of a group.
func (g Groups) ChatRoomState(ctx context.Context, group uint64) (GroupState, error) {
	params := url.Values{"chat_group_id": {uintParam(group)}}

	var resp struct {
		State groupStateJSON `json:"state"`
	}
	if err := g.c.conn.Call(ctx, steam.Get(chatRoomService, "GetChatRoomGroupState", params), &resp); err != nil {
		return GroupState{}, fmt.Errorf("get chat room group state %d: %w", group, err)
	}
	return resp.State.toGroupState(group), nil
}

func (s groupStateJSON) toGroupState(requested uint64) GroupState {
	st := GroupState{
		ChatGroupID:   uint64(s.HeaderState.ChatGroupID),
		ChatGroupName: s.HeaderState.ChatName,
		DefaultChatID: uint64(s.HeaderState.DefaultChatID),
		MemberCount:   len(s.Members),
	}
	if st.ChatGroupID == 0 {
		st.ChatGroupID = uint64(s.ChatGroupID)
	}
	if st.ChatGroupID == 0 {
		st.ChatGroupID = requested
	}
	if st.DefaultChatID == 0 {
		st.DefaultChatID = uint64(s.DefaultChatID)
	}

	st.Rooms = lo.Map(s.ChatRooms, func(r chatRoomStateJSON, _ int) RoomInfo {
		return RoomInfo{
			ChatGroupID:   st.ChatGroupID,
			ChatID:        uint64(r.ChatID),
			ChatName:      r.ChatName,
			ChatGroupName: st.ChatGroupName,
			IsJoined:      true,
		}
	})
	return st
}
