package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/medchat-server/internal/store"
	"github.com/vovakirdan/medchat-server/internal/store/sqldb"
)

func newTestStore(t *testing.T) *sqldb.Store {
	t.Helper()
	st, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createDirect(t *testing.T, st *sqldb.Store, a, b string) *store.Conversation {
	t.Helper()
	conv := &store.Conversation{
		Type:           store.ConversationUserToUser,
		Title:          "Chat",
		Participant1ID: a,
		Participant2ID: b,
	}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	return conv
}

func TestConversationRoundTripAndLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	direct := createDirect(t, st, "alice", "bob")
	aiConv := &store.Conversation{
		Type:    store.ConversationUserToAI,
		Title:   "AI Assistant",
		UserID:  "alice",
		AIModel: "biomistral-7b",
		Context: "triage",
	}
	require.NoError(t, st.CreateConversation(ctx, aiConv))

	got, err := st.GetConversation(ctx, direct.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Counterpart("alice"))
	require.True(t, got.HasParticipant("bob"))
	require.False(t, got.HasParticipant("mallory"))

	_, err = st.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	found, err := st.FindDirectConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, direct.ID, found.ID)

	_, err = st.FindDirectConversation(ctx, "alice", "carol")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := st.ListConversations(ctx, "alice")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	require.ElementsMatch(t, []string{direct.ID, aiConv.ID}, ids)

	list, err = st.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTouchAndResetUnread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createDirect(t, st, "alice", "bob")

	n, err := st.TouchConversation(ctx, conv.ID, "hello", 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = st.TouchConversation(ctx, conv.ID, "again", 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "again", got.LastMessagePreview)
	require.NotNil(t, got.LastMessageAt)

	require.NoError(t, st.ResetUnread(ctx, conv.ID))
	got, err = st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Zero(t, got.UnreadCount)

	_, err = st.TouchConversation(ctx, "missing", "x", 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessageStatusBulkUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createDirect(t, st, "alice", "bob")

	fromBob := &store.Message{ConversationID: conv.ID, SenderID: "bob", Content: "hi", Attachments: []string{"/files/x.png"}}
	fromBob2 := &store.Message{ConversationID: conv.ID, SenderID: "bob", Content: "there"}
	fromAlice := &store.Message{ConversationID: conv.ID, SenderID: "alice", Content: "yo"}
	for _, m := range []*store.Message{fromBob, fromBob2, fromAlice} {
		require.NoError(t, st.CreateMessage(ctx, m))
		require.Equal(t, store.StatusSent, m.Status)
	}

	// alice receives bob's messages
	n, err := st.UpdateMessageStatus(ctx, conv.ID, "alice", []store.MessageStatus{store.StatusSent}, store.StatusDelivered)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// repeating the same transition is a no-op
	n, err = st.UpdateMessageStatus(ctx, conv.ID, "alice", []store.MessageStatus{store.StatusSent}, store.StatusDelivered)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = st.UpdateMessageStatus(ctx, conv.ID, "alice", []store.MessageStatus{store.StatusSent, store.StatusDelivered}, store.StatusRead)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	msgs, err := st.ListMessages(ctx, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	statuses := map[string]store.MessageStatus{}
	for _, m := range msgs {
		statuses[m.Content] = m.Status
		if m.Status == store.StatusRead {
			require.NotNil(t, m.ReadAt)
		}
	}
	want := map[string]store.MessageStatus{
		"hi":    store.StatusRead,
		"there": store.StatusRead,
		"yo":    store.StatusSent,
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"/files/x.png"}, msgs[0].Attachments)
}

func TestListMessagesPaginationIsChronological(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createDirect(t, st, "alice", "bob")

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, st.CreateMessage(ctx, &store.Message{ConversationID: conv.ID, SenderID: "alice", Content: text}))
	}

	page, err := st.ListMessages(ctx, conv.ID, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"4", "5"}, contents(page))

	page, err = st.ListMessages(ctx, conv.ID, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"2", "3"}, contents(page))
}

func TestAIMessagesAreMarkedRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := &store.Conversation{Type: store.ConversationUserToAI, UserID: "alice"}
	require.NoError(t, st.CreateConversation(ctx, conv))

	require.NoError(t, st.CreateMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		SenderType:     store.SenderAI,
		Content:        "answer",
		AIModel:        "biomistral-7b",
		Anonymized:     true,
	}))

	n, err := st.UpdateMessageStatus(ctx, conv.ID, "alice", []store.MessageStatus{store.StatusSent}, store.StatusRead)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestAuditChainStorage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.LastAudit(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	first := &store.AuditEntry{Action: "chat_connect", UserID: "alice", Success: true, PreviousHash: "0", CurrentHash: "h1",
		Metadata: map[string]any{"conn": "c1"}}
	second := &store.AuditEntry{Action: "chat_disconnect", UserID: "alice", Success: true, PreviousHash: "h1", CurrentHash: "h2"}
	require.NoError(t, st.AppendAudit(ctx, first))
	require.NoError(t, st.AppendAudit(ctx, second))

	last, err := st.LastAudit(ctx)
	require.NoError(t, err)
	require.Equal(t, "h2", last.CurrentHash)

	all, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "chat_connect", all[0].Action)
	require.Equal(t, "c1", all[0].Metadata["conn"])
}

func contents(msgs []*store.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestMessageSeqIsUniquePerConversation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createDirect(t, st, "alice", "bob")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.CreateMessage(ctx, &store.Message{ConversationID: conv.ID, SenderID: "alice", Content: fmt.Sprint(i)})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var total, distinct int
	require.NoError(t, st.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT seq) FROM messages WHERE conversation_id = ?`, conv.ID,
	).Scan(&total, &distinct))
	require.Equal(t, 20, total)
	require.Equal(t, 20, distinct)

	_, err := st.DB().ExecContext(ctx,
		`UPDATE messages SET seq = 1 WHERE conversation_id = ? AND seq = 2`, conv.ID)
	require.Error(t, err)
	require.True(t, sqldb.SQLite.UniqueViolation(err), "duplicate seq must be rejected by the unique index: %v", err)
}
