package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/medchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer credential (see `medchat-server token`)")
	conversation := flag.String("conversation", "", "conversation id to post into")
	text := flag.String("text", "hello from smoke test", "message text to send")
	askAI := flag.Bool("ai", false, "send the text to the assistant instead")
	timeout := flag.Duration("timeout", 30*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *conversation == "" {
		return fmt.Errorf("-token and -conversation are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(id int64, typ string, payload any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(1, proto.InboundTypeJoinConversation, proto.ConversationRef{ConversationID: *conversation}); err != nil {
		return err
	}

	msgType := proto.InboundTypeSendMessage
	var payload any = proto.SendMessageData{ConversationID: *conversation, Content: *text}
	if *askAI {
		msgType = proto.InboundTypeSendAIMessage
		payload = proto.SendAIMessageData{ConversationID: *conversation, Content: *text}
	}
	if err := send(2, msgType, payload); err != nil {
		return err
	}

	for {
		var frame struct {
			Type  string          `json:"type"`
			ID    int64           `json:"id"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch frame.Type {
		case proto.OutboundTypeAck:
			var ack proto.AckData
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				return fmt.Errorf("unmarshal ack: %w", err)
			}
			if ack.Error != "" {
				return fmt.Errorf("%s rejected: %s (%s)", frame.Event, ack.Error, ack.Code)
			}
			fmt.Printf("ack id=%d event=%s\n", frame.ID, frame.Event)
			if frame.ID != 2 {
				continue
			}
			if ack.AIResponse != nil {
				fmt.Printf("assistant (%s): %q\n", ack.AIResponse.AIModel, ack.AIResponse.Content)
			} else if ack.Message != nil {
				fmt.Printf("stored message id=%s status=%s\n", ack.Message.ID, ack.Message.Status)
			}
			return nil
		case proto.OutboundTypeEvent:
			fmt.Printf("event=%s data=%s\n", frame.Event, string(frame.Data))
		}
	}
}
