package core

import (
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	rooms := NewRooms(nil)
	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), Identity{UserID: fmt.Sprintf("u%d", i)})
		rooms.Add(c)
		rooms.Join(c, ConversationRoom("bench"))
		clients = append(clients, c)
	}
	ev := &Event{Kind: EventNewMessage, ConversationID: "bench"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rooms.Broadcast(ConversationRoom("bench"), ev, "")
		for _, c := range clients {
			<-c.Events
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
