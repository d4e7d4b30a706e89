package accesslist

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite, so list entries survive
// restarts. Shares connection settings with the other SQLite stores.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once

	addStmt     *sql.Stmt
	removeStmt  *sql.Stmt
	entriesStmt *sql.Stmt
}

// NewSQLiteStore creates a SQLite access list store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_list_entries (
		id TEXT NOT NULL,
		list TEXT NOT NULL,
		pattern TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		added_by TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL,
		PRIMARY KEY (list, pattern)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.addStmt, err = s.db.Prepare(`
		INSERT INTO access_list_entries (id, list, pattern, reason, added_by, added_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (list, pattern) DO UPDATE SET
			id = excluded.id,
			reason = excluded.reason,
			added_by = excluded.added_by,
			added_at = excluded.added_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare add statement: %w", err)
	}

	s.removeStmt, err = s.db.Prepare(`DELETE FROM access_list_entries WHERE list = ? AND pattern = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove statement: %w", err)
	}

	s.entriesStmt, err = s.db.Prepare(`
		SELECT id, pattern, reason, added_by, added_at
		FROM access_list_entries WHERE list = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare entries statement: %w", err)
	}

	return nil
}

// Add stores an entry, replacing any existing entry with the same pattern.
func (s *SQLiteStore) Add(ctx context.Context, entry Entry) error {
	if !entry.List.Valid() {
		return ErrInvalidType
	}
	_, err := s.addStmt.ExecContext(ctx,
		entry.ID.String(), string(entry.List), entry.Pattern,
		entry.Reason, entry.AddedBy, entry.AddedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}
	return nil
}

// Remove deletes the entry with the given pattern, reporting whether one
// existed.
func (s *SQLiteStore) Remove(ctx context.Context, list Type, pattern string) (bool, error) {
	if !list.Valid() {
		return false, ErrInvalidType
	}
	res, err := s.removeStmt.ExecContext(ctx, string(list), pattern)
	if err != nil {
		return false, fmt.Errorf("failed to remove entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count removed rows: %w", err)
	}
	return n > 0, nil
}

// Entries returns all entries on the given list.
func (s *SQLiteStore) Entries(ctx context.Context, list Type) ([]Entry, error) {
	if !list.Valid() {
		return nil, ErrInvalidType
	}
	rows, err := s.entriesStmt.QueryContext(ctx, string(list))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id      string
			entry   Entry
			addedAt int64
		)
		if err := rows.Scan(&id, &entry.Pattern, &entry.Reason, &entry.AddedBy, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry id %q: %w", id, err)
		}
		entry.List = list
		entry.AddedAt = time.UnixMilli(addedAt).UTC()
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return out, nil
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.addStmt != nil {
			s.addStmt.Close()
		}
		if s.removeStmt != nil {
			s.removeStmt.Close()
		}
		if s.entriesStmt != nil {
			s.entriesStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}
