package sqldb

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the few places where SQLite and PostgreSQL disagree.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// Schema is applied by Migrate, one statement per element.
	Schema []string
	// UniqueViolation reports whether err came from a unique constraint.
	UniqueViolation func(err error) bool
}

// Rebind rewrites '?' placeholders for dialects that need numbered ones.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Name:            "sqlite",
	UniqueViolation: sqliteUniqueViolation,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			type                 TEXT NOT NULL,
			title                TEXT NOT NULL DEFAULT '',
			participant1_id      TEXT,
			participant2_id      TEXT,
			user_id              TEXT,
			ai_model             TEXT NOT NULL DEFAULT '',
			case_id              TEXT NOT NULL DEFAULT '',
			context              TEXT NOT NULL DEFAULT '',
			last_message_preview TEXT NOT NULL DEFAULT '',
			is_active            BOOLEAN NOT NULL DEFAULT 1,
			unread_count         INTEGER NOT NULL DEFAULT 0,
			last_message_at      DATETIME,
			created_at           DATETIME NOT NULL,
			updated_at           DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_p1 ON conversations(participant1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_p2 ON conversations(participant2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT,
			sender_type     TEXT NOT NULL,
			content         TEXT NOT NULL,
			is_encrypted    BOOLEAN NOT NULL DEFAULT 0,
			status          TEXT NOT NULL,
			reply_to_id     TEXT NOT NULL DEFAULT '',
			attachments     TEXT NOT NULL DEFAULT '[]',
			ai_model        TEXT NOT NULL DEFAULT '',
			anonymized      BOOLEAN NOT NULL DEFAULT 0,
			read_at         DATETIME,
			created_at      DATETIME NOT NULL,
			seq             INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			timestamp     DATETIME NOT NULL,
			action        TEXT NOT NULL,
			user_id       TEXT NOT NULL DEFAULT '',
			username      TEXT NOT NULL DEFAULT '',
			resource      TEXT NOT NULL DEFAULT '',
			resource_id   TEXT NOT NULL DEFAULT '',
			ip_address    TEXT NOT NULL DEFAULT '',
			success       BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			metadata      TEXT NOT NULL DEFAULT '{}',
			previous_hash TEXT NOT NULL,
			current_hash  TEXT NOT NULL
		)`,
	},
}

// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
var Postgres = Dialect{
	Name:            "postgres",
	Numbered:        true,
	UniqueViolation: postgresUniqueViolation,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			type                 TEXT NOT NULL,
			title                TEXT NOT NULL DEFAULT '',
			participant1_id      TEXT,
			participant2_id      TEXT,
			user_id              TEXT,
			ai_model             TEXT NOT NULL DEFAULT '',
			case_id              TEXT NOT NULL DEFAULT '',
			context              TEXT NOT NULL DEFAULT '',
			last_message_preview TEXT NOT NULL DEFAULT '',
			is_active            BOOLEAN NOT NULL DEFAULT TRUE,
			unread_count         INTEGER NOT NULL DEFAULT 0,
			last_message_at      TIMESTAMPTZ,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_p1 ON conversations(participant1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_p2 ON conversations(participant2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT,
			sender_type     TEXT NOT NULL,
			content         TEXT NOT NULL,
			is_encrypted    BOOLEAN NOT NULL DEFAULT FALSE,
			status          TEXT NOT NULL,
			reply_to_id     TEXT NOT NULL DEFAULT '',
			attachments     TEXT NOT NULL DEFAULT '[]',
			ai_model        TEXT NOT NULL DEFAULT '',
			anonymized      BOOLEAN NOT NULL DEFAULT FALSE,
			read_at         TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL,
			seq             BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			seq           BIGSERIAL PRIMARY KEY,
			id            TEXT NOT NULL UNIQUE,
			timestamp     TIMESTAMPTZ NOT NULL,
			action        TEXT NOT NULL,
			user_id       TEXT NOT NULL DEFAULT '',
			username      TEXT NOT NULL DEFAULT '',
			resource      TEXT NOT NULL DEFAULT '',
			resource_id   TEXT NOT NULL DEFAULT '',
			ip_address    TEXT NOT NULL DEFAULT '',
			success       BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			metadata      TEXT NOT NULL DEFAULT '{}',
			previous_hash TEXT NOT NULL,
			current_hash  TEXT NOT NULL
		)`,
	},
}

func sqliteUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// 23505 is unique_violation.
func postgresUniqueViolation(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}
