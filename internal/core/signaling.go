package core

import "context"

// handleTyping relays a typing indicator to the other members of a room the
// connection has joined. Indicators for other rooms are dropped silently.
func (h *Hub) handleTyping(_ context.Context, c *Client, cmd *Command) (*Ack, error) {
	room := ConversationRoom(cmd.ConversationID)
	if cmd.ConversationID == "" || !h.rooms.IsMember(c.ID, room) {
		h.log.Debug().
			Str("conn_id", c.ID).
			Str("conversation_id", cmd.ConversationID).
			Msg("typing for unjoined conversation dropped")
		return nil, nil
	}
	h.rooms.Broadcast(room, &Event{
		Kind:           EventUserTyping,
		ConversationID: cmd.ConversationID,
		User:           c.Identity,
		IsTyping:       cmd.IsTyping,
	}, c.ID)
	return nil, nil
}

func (h *Hub) signalAITyping(conversationID string, typing bool) {
	h.rooms.Broadcast(ConversationRoom(conversationID), &Event{
		Kind:           EventAITyping,
		ConversationID: conversationID,
		IsTyping:       typing,
	}, "")
}
