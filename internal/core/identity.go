package core

// Identity is a verified user as seen by the messaging core.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	Clearance int
}

const (
	personalRoomPrefix     = "user:"
	conversationRoomPrefix = "conversation:"
)

// PersonalRoom is the room every connection of a user joins on authentication.
func PersonalRoom(userID string) string {
	return personalRoomPrefix + userID
}

// ConversationRoom is the shared room of a conversation.
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}
