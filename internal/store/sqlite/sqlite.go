package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/medchat-server/internal/store/sqldb"
)

// New opens (or creates) a SQLite database at dbPath and applies the schema.
func New(ctx context.Context, dbPath string) (*sqldb.Store, error) {
	return NewWithSetup(ctx, dbPath, nil)
}

// NewWithSetup opens the database, applies the schema and then runs setup.
// Useful for tests to seed rows.
func NewWithSetup(ctx context.Context, dbPath string, setup func(*sql.DB) error) (*sqldb.Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	st := sqldb.New(db, sqldb.SQLite)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return st, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}
