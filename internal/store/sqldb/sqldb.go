// Package sqldb implements store.Store on database/sql for every supported dialect.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/medchat-server/internal/store"
	"github.com/vovakirdan/medchat-server/internal/utils"
)

// Store implements store.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for setup code.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the dialect schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// ==== ConversationStore implementation ====

const conversationColumns = `id, type, title, COALESCE(participant1_id, ''), COALESCE(participant2_id, ''),
	COALESCE(user_id, ''), ai_model, case_id, context, last_message_preview, is_active,
	unread_count, last_message_at, created_at, updated_at`

// CreateConversation inserts a conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	if conv.ID == "" {
		conv.ID = utils.NewID()
	}
	now := s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.IsActive = true

	query := `
		INSERT INTO conversations (id, type, title, participant1_id, participant2_id, user_id,
			ai_model, case_id, context, is_active, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.q(query),
		conv.ID, string(conv.Type), conv.Title,
		nullString(conv.Participant1ID), nullString(conv.Participant2ID), nullString(conv.UserID),
		conv.AIModel, conv.CaseID, conv.Context, true, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, s.q(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// FindDirectConversation returns the active user-to-user conversation between two users.
func (s *Store) FindDirectConversation(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE type = ? AND is_active = ?
		  AND ((participant1_id = ? AND participant2_id = ?) OR (participant1_id = ? AND participant2_id = ?))
		ORDER BY created_at ASC
		LIMIT 1`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, s.q(query),
		string(store.ConversationUserToUser), true, userA, userB, userB, userA))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("direct conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query direct conversation: %w", err)
	}
	return conv, nil
}

// ListConversations lists active conversations for a user.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE is_active = ? AND (participant1_id = ? OR participant2_id = ? OR user_id = ?)
		ORDER BY COALESCE(last_message_at, created_at) DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), true, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// TouchConversation bumps activity metadata and the unread counter.
func (s *Store) TouchConversation(ctx context.Context, id, preview string, unreadDelta int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	now := s.now()
	update := `
		UPDATE conversations
		SET unread_count = unread_count + ?, last_message_at = ?, last_message_preview = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := tx.ExecContext(ctx, s.q(update), unreadDelta, now, preview, now, id)
	if err != nil {
		return 0, fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}

	var unread int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT unread_count FROM conversations WHERE id = ?`), id).Scan(&unread); err != nil {
		return 0, fmt.Errorf("read unread count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return unread, nil
}

// ResetUnread sets the unread counter to zero.
func (s *Store) ResetUnread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE conversations SET unread_count = 0, updated_at = ? WHERE id = ?`), s.now(), id)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var (
		conv          store.Conversation
		convType      string
		lastMessageAt sql.NullTime
	)
	err := row.Scan(
		&conv.ID,
		&convType,
		&conv.Title,
		&conv.Participant1ID,
		&conv.Participant2ID,
		&conv.UserID,
		&conv.AIModel,
		&conv.CaseID,
		&conv.Context,
		&conv.LastMessagePreview,
		&conv.IsActive,
		&conv.UnreadCount,
		&lastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Type = store.ConversationType(convType)
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}
	return &conv, nil
}

// ==== MessageStore implementation ====

const maxSeqAttempts = 5

const messageColumns = `id, conversation_id, COALESCE(sender_id, ''), sender_type, content, is_encrypted,
	status, reply_to_id, attachments, ai_model, anonymized, read_at, created_at`

// CreateMessage inserts a message.
func (s *Store) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.Status == "" {
		msg.Status = store.StatusSent
	}
	if msg.SenderType == "" {
		msg.SenderType = store.SenderUser
	}
	msg.CreatedAt = s.now()

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_type, content, is_encrypted,
			status, reply_to_id, attachments, ai_model, anonymized, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?))
	`
	// Concurrent inserts into one conversation can race for the same seq;
	// the unique index rejects the loser, which then takes the next one.
	for attempt := 1; ; attempt++ {
		_, err = s.db.ExecContext(ctx, s.q(query),
			msg.ID, msg.ConversationID, nullString(msg.SenderID), string(msg.SenderType), msg.Content,
			msg.IsEncrypted, string(msg.Status), msg.ReplyToID, string(attachmentsJSON), msg.AIModel,
			msg.Anonymized, msg.CreatedAt, msg.ConversationID,
		)
		if err == nil {
			return nil
		}
		if attempt >= maxSeqAttempts || !s.uniqueViolation(err) {
			return fmt.Errorf("insert message: %w", err)
		}
	}
}

func (s *Store) uniqueViolation(err error) bool {
	return s.dialect.UniqueViolation != nil && s.dialect.UniqueViolation(err)
}

// ListMessages returns a page of messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first page, returned oldest-first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UpdateMessageStatus bulk-moves messages between statuses.
func (s *Store) UpdateMessageStatus(ctx context.Context, conversationID, excludeSenderID string, from []store.MessageStatus, to store.MessageStatus) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(from))
	args := []any{string(to)}
	var readAt any
	if to == store.StatusRead {
		readAt = s.now()
	}
	args = append(args, readAt, conversationID, excludeSenderID)
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := `
		UPDATE messages
		SET status = ?, read_at = COALESCE(?, read_at)
		WHERE conversation_id = ?
		  AND COALESCE(sender_id, '') <> ?
		  AND status IN (` + strings.Join(placeholders, ", ") + `)
	`
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("update message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg         store.Message
		senderType  string
		status      string
		attachments string
		readAt      sql.NullTime
	)
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&senderType,
		&msg.Content,
		&msg.IsEncrypted,
		&status,
		&msg.ReplyToID,
		&attachments,
		&msg.AIModel,
		&msg.Anonymized,
		&readAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.SenderType = store.SenderType(senderType)
	msg.Status = store.MessageStatus(status)
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return &msg, nil
}

// ==== AuditStore implementation ====

const auditColumns = `id, timestamp, action, user_id, username, resource, resource_id, ip_address,
	success, error_message, metadata, previous_hash, current_hash`

// AppendAudit inserts an audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry *store.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = utils.NewID()
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, timestamp, action, user_id, username, resource, resource_id,
			ip_address, success, error_message, metadata, previous_hash, current_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, s.q(query),
		entry.ID, entry.Timestamp, entry.Action, entry.UserID, entry.Username, entry.Resource,
		entry.ResourceID, entry.IPAddress, entry.Success, entry.ErrorMessage, string(metadataJSON),
		entry.PreviousHash, entry.CurrentHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// LastAudit returns the newest audit entry.
func (s *Store) LastAudit(ctx context.Context) (*store.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY seq DESC LIMIT 1`
	entry, err := scanAudit(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit chain empty: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query last audit entry: %w", err)
	}
	return entry, nil
}

// ListAudit returns the full chain in insertion order.
func (s *Store) ListAudit(ctx context.Context) ([]*store.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanAudit(row rowScanner) (*store.AuditEntry, error) {
	var (
		entry    store.AuditEntry
		metadata string
	)
	err := row.Scan(
		&entry.ID,
		&entry.Timestamp,
		&entry.Action,
		&entry.UserID,
		&entry.Username,
		&entry.Resource,
		&entry.ResourceID,
		&entry.IPAddress,
		&entry.Success,
		&entry.ErrorMessage,
		&metadata,
		&entry.PreviousHash,
		&entry.CurrentHash,
	)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
