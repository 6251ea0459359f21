package core

import (
	"fmt"

	"github.com/vovakirdan/medchat-server/internal/store"
)

// Allowed forward edges of the message status machine. Anything else,
// including every move out of read or failed, is rejected.
var statusEdges = map[store.MessageStatus][]store.MessageStatus{
	store.StatusSent:      {store.StatusDelivered, store.StatusFailed},
	store.StatusDelivered: {store.StatusRead},
}

// CanTransition reports whether a message may move from one status to another.
func CanTransition(from, to store.MessageStatus) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to store.MessageStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
