// Package audit keeps a tamper-evident, hash-chained trail of security
// relevant actions.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/medchat-server/internal/store"
)

// GenesisHash is the previous hash of the first entry.
const GenesisHash = "0"

// Actions recorded by the messaging core.
const (
	ActionConnect             = "chat_connect"
	ActionDisconnect          = "chat_disconnect"
	ActionMessageSent         = "message_sent"
	ActionAIMessageSent       = "ai_message_sent"
	ActionConversationCreated = "conversation_created"
)

// ErrChainBroken is returned by Verify when an entry does not match its link.
var ErrChainBroken = errors.New("audit chain broken")

// Event describes something worth recording.
type Event struct {
	Action       string
	UserID       string
	Username     string
	Resource     string
	ResourceID   string
	IPAddress    string
	Success      bool
	ErrorMessage string
	Metadata     map[string]any
}

// Recorder appends events to the chain. Appends are serialized so each entry
// links to the one before it.
type Recorder struct {
	mu    sync.Mutex
	store store.AuditStore
	now   func() time.Time
	log   *zerolog.Logger
}

// NewRecorder creates a recorder over st.
func NewRecorder(st store.AuditStore, logger *zerolog.Logger) *Recorder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{store: st, now: time.Now, log: logger}
}

// Record appends ev to the chain.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := GenesisHash
	last, err := r.store.LastAudit(ctx)
	switch {
	case err == nil:
		previous = last.CurrentHash
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load last audit entry: %w", err)
	}

	entry := &store.AuditEntry{
		Timestamp:    normalize(r.now()),
		Action:       ev.Action,
		UserID:       ev.UserID,
		Username:     ev.Username,
		Resource:     ev.Resource,
		ResourceID:   ev.ResourceID,
		IPAddress:    ev.IPAddress,
		Success:      ev.Success,
		ErrorMessage: ev.ErrorMessage,
		Metadata:     ev.Metadata,
		PreviousHash: previous,
	}
	entry.CurrentHash, err = hashEntry(entry)
	if err != nil {
		return err
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		return err
	}

	r.log.Debug().
		Str("action", ev.Action).
		Str("user_id", ev.UserID).
		Str("hash", entry.CurrentHash).
		Msg("audit entry recorded")
	return nil
}

// Verify walks the chain and returns the number of entries checked. The
// returned error wraps ErrChainBroken and names the first bad entry.
func (r *Recorder) Verify(ctx context.Context) (int, error) {
	entries, err := r.store.ListAudit(ctx)
	if err != nil {
		return 0, fmt.Errorf("list audit entries: %w", err)
	}

	previous := GenesisHash
	for i, entry := range entries {
		if entry.PreviousHash != previous {
			return i, fmt.Errorf("%w: entry %s does not link to its predecessor", ErrChainBroken, entry.ID)
		}
		want, err := hashEntry(entry)
		if err != nil {
			return i, err
		}
		if want != entry.CurrentHash {
			return i, fmt.Errorf("%w: entry %s was modified", ErrChainBroken, entry.ID)
		}
		previous = entry.CurrentHash
	}
	return len(entries), nil
}

// normalize drops precision the databases do not keep.
func normalize(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).UTC()
}

type hashInput struct {
	Timestamp    string         `json:"timestamp"`
	Action       string         `json:"action"`
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resourceId"`
	IPAddress    string         `json:"ipAddress"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage"`
	Metadata     map[string]any `json:"metadata"`
	PreviousHash string         `json:"previousHash"`
}

func hashEntry(e *store.AuditEntry) (string, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(hashInput{
		Timestamp:    normalize(e.Timestamp).Format(time.RFC3339Nano),
		Action:       e.Action,
		UserID:       e.UserID,
		Username:     e.Username,
		Resource:     e.Resource,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		Metadata:     metadata,
		PreviousHash: e.PreviousHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
