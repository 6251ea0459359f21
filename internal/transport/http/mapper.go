package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/proto"
	"github.com/vovakirdan/medchat-server/internal/utils"
)

var errUnknownType = errors.New("unknown message type")

type inboundDecoder func(raw json.RawMessage, cmd *core.Command) error

type inboundRoute struct {
	kind   core.CommandKind
	decode inboundDecoder
}

var inboundRoutes = map[string]inboundRoute{
	proto.InboundTypeSendMessage:       {core.CommandSendMessage, decodeSendMessage},
	proto.InboundTypeSendAIMessage:     {core.CommandSendAIMessage, decodeSendAIMessage},
	proto.InboundTypeTyping:            {core.CommandTyping, decodeTyping},
	proto.InboundTypeJoinConversation:  {core.CommandJoinConversation, decodeConversationRef},
	proto.InboundTypeLeaveConversation: {core.CommandLeaveConversation, decodeConversationRef},
	proto.InboundTypeMarkRead:          {core.CommandMarkRead, decodeConversationRef},
	proto.InboundTypeMarkDelivered:     {core.CommandMarkDelivered, decodeConversationRef},
}

// inboundToCommand maps a frame to a command. For known types the command is
// returned even when decoding fails so the caller can address the ack.
func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	route, ok := inboundRoutes[inbound.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
	cmd := &core.Command{Kind: route.kind, AckID: inbound.ID}
	if len(inbound.Data) == 0 {
		return cmd, fmt.Errorf("%w: missing data", core.ErrBadRequest)
	}
	if err := route.decode(inbound.Data, cmd); err != nil {
		return cmd, err
	}
	if !utils.IsID(cmd.ConversationID) {
		return cmd, fmt.Errorf("%w: conversationId must be a UUID", core.ErrBadRequest)
	}
	return cmd, nil
}

func decodeSendMessage(raw json.RawMessage, cmd *core.Command) error {
	var data proto.SendMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	cmd.ConversationID = data.ConversationID
	cmd.Content = data.Content
	cmd.Encrypted = data.Encrypted
	cmd.ReplyToID = data.ReplyToID
	cmd.AttachmentURL = data.AttachmentURL
	return nil
}

func decodeSendAIMessage(raw json.RawMessage, cmd *core.Command) error {
	var data proto.SendAIMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	cmd.ConversationID = data.ConversationID
	cmd.Content = data.Content
	cmd.SystemPrompt = data.SystemPrompt
	return nil
}

func decodeTyping(raw json.RawMessage, cmd *core.Command) error {
	var data proto.TypingData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	cmd.ConversationID = data.ConversationID
	cmd.IsTyping = data.IsTyping
	return nil
}

func decodeConversationRef(raw json.RawMessage, cmd *core.Command) error {
	var ref proto.ConversationRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
	cmd.ConversationID = ref.ConversationID
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	switch event.Kind {
	case core.EventAuthError:
		msg := "authentication failed"
		if event.Error != nil {
			msg = event.Error.Message
		}
		out.Data = proto.EventAuthError{Message: msg}
	case core.EventUserOnline:
		out.Data = proto.EventUserOnline{UserID: event.User.UserID, Username: event.User.Username}
	case core.EventUserOffline:
		out.Data = proto.EventUserOffline{UserID: event.User.UserID}
	case core.EventNewMessage:
		out.Data = messageFromView(event.Message)
	case core.EventUnreadUpdate:
		out.Data = proto.EventUnreadUpdate{ConversationID: event.ConversationID, UnreadCount: event.UnreadCount}
	case core.EventAITyping:
		out.Data = proto.EventAITyping{ConversationID: event.ConversationID, IsTyping: event.IsTyping}
	case core.EventUserTyping:
		out.Data = proto.EventUserTyping{
			UserID:         event.User.UserID,
			Username:       event.User.Username,
			ConversationID: event.ConversationID,
			IsTyping:       event.IsTyping,
		}
	case core.EventUnreadCleared:
		out.Data = proto.EventUnreadCleared{ConversationID: event.ConversationID}
	case core.EventMessageStatus:
		out.Data = proto.EventMessageStatus{ConversationID: event.ConversationID, Status: string(event.Status)}
	case core.EventAck:
		return outboundFromAck(event.Ack)
	}
	return out
}

func outboundFromAck(ack *core.Ack) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeAck, ID: ack.ID, Event: ack.Command.String()}
	if !ack.OK() {
		out.Data = proto.AckData{Error: ack.Err.Message, Code: ack.Err.Code}
		return out
	}
	data := proto.AckData{
		Success:        true,
		ConversationID: ack.ConversationID,
		Message:        messageFromView(ack.Message),
		UserMessage:    messageFromView(ack.UserMessage),
		AIResponse:     messageFromView(ack.AIResponse),
	}
	if ack.Command == core.CommandMarkRead || ack.Command == core.CommandMarkDelivered {
		updated := ack.Updated
		data.Updated = &updated
	}
	out.Data = data
	return out
}

func messageFromView(v *core.MessageView) *proto.Message {
	if v == nil || v.Message == nil {
		return nil
	}
	msg := &proto.Message{
		ID:             v.ID,
		ConversationID: v.ConversationID,
		SenderID:       v.SenderID,
		SenderType:     string(v.SenderType),
		SenderUsername: v.SenderUsername,
		Content:        v.Content,
		IsEncrypted:    v.IsEncrypted,
		Status:         string(v.Status),
		ReplyToID:      v.ReplyToID,
		Attachments:    v.Attachments,
		AIModel:        v.AIModel,
		Anonymized:     v.Anonymized,
		CreatedAt:      v.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if v.ReadAt != nil {
		msg.ReadAt = v.ReadAt.UTC().Format(time.RFC3339Nano)
	}
	return msg
}
