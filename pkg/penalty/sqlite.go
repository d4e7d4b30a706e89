package penalty

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite. Every Update runs inside one
// transaction so concurrent violation recordings for the same identity
// cannot lose increments. Shares connection settings with the counter
// backend and may point at the same database file.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once

	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite penalty store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a SQLite penalty store with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{DBPath: dbPath})
}

// NewSQLiteStoreWithConfig creates a SQLite penalty store with custom
// configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

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
	CREATE TABLE IF NOT EXISTS penalty_states (
		identity TEXT PRIMARY KEY,
		violation_count INTEGER NOT NULL,
		last_violation_at INTEGER NOT NULL,
		block_expires_at INTEGER NOT NULL,
		banned INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_penalty_states_last_violation ON penalty_states(last_violation_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT violation_count, last_violation_at, block_expires_at, banned
		FROM penalty_states WHERE identity = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM penalty_states WHERE identity = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT identity, violation_count, last_violation_at, block_expires_at, banned
		FROM penalty_states`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// Get returns the state for identity, or nil if none exists.
func (s *SQLiteStore) Get(ctx context.Context, identity string) (*State, error) {
	var (
		count         uint32
		lastViolation int64
		blockExpires  int64
		banned        int
	)
	err := s.getStmt.QueryRowContext(ctx, identity).Scan(&count, &lastViolation, &blockExpires, &banned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load penalty state: %w", err)
	}
	return buildState(identity, count, lastViolation, blockExpires, banned), nil
}

// Update atomically transforms the state for identity inside one
// transaction.
func (s *SQLiteStore) Update(ctx context.Context, identity string, fn func(cur *State) (*State, error)) (*State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		count         uint32
		lastViolation int64
		blockExpires  int64
		banned        int
	)
	var cur *State
	err = tx.QueryRowContext(ctx, `
		SELECT violation_count, last_violation_at, block_expires_at, banned
		FROM penalty_states WHERE identity = ?`, identity).
		Scan(&count, &lastViolation, &blockExpires, &banned)
	if err == nil {
		cur = buildState(identity, count, lastViolation, blockExpires, banned)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read penalty state: %w", err)
	}

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM penalty_states WHERE identity = ?`, identity); err != nil {
			return nil, fmt.Errorf("failed to delete penalty state: %w", err)
		}
	} else {
		var blockMillis int64
		if !next.BlockExpiresAt.IsZero() {
			blockMillis = next.BlockExpiresAt.UnixMilli()
		}
		bannedInt := 0
		if next.Banned {
			bannedInt = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO penalty_states (identity, violation_count, last_violation_at, block_expires_at, banned)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (identity) DO UPDATE SET
				violation_count = excluded.violation_count,
				last_violation_at = excluded.last_violation_at,
				block_expires_at = excluded.block_expires_at,
				banned = excluded.banned
		`, identity, next.ViolationCount, next.LastViolationAt.UnixMilli(), blockMillis, bannedInt)
		if err != nil {
			return nil, fmt.Errorf("failed to write penalty state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

// Delete removes the state for identity.
func (s *SQLiteStore) Delete(ctx context.Context, identity string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, identity); err != nil {
		return fmt.Errorf("failed to delete penalty state: %w", err)
	}
	return nil
}

// List returns all stored states.
func (s *SQLiteStore) List(ctx context.Context) ([]*State, error) {
	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list penalty states: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		var (
			identity      string
			count         uint32
			lastViolation int64
			blockExpires  int64
			banned        int
		)
		if err := rows.Scan(&identity, &count, &lastViolation, &blockExpires, &banned); err != nil {
			return nil, fmt.Errorf("failed to scan penalty state: %w", err)
		}
		out = append(out, buildState(identity, count, lastViolation, blockExpires, banned))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating penalty states: %w", err)
	}
	return out, nil
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.getStmt != nil {
			s.getStmt.Close()
		}
		if s.deleteStmt != nil {
			s.deleteStmt.Close()
		}
		if s.listStmt != nil {
			s.listStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

func buildState(identity string, count uint32, lastViolation, blockExpires int64, banned int) *State {
	st := &State{
		Identity:        identity,
		ViolationCount:  count,
		LastViolationAt: time.UnixMilli(lastViolation).UTC(),
		Banned:          banned != 0,
	}
	if blockExpires != 0 {
		st.BlockExpiresAt = time.UnixMilli(blockExpires).UTC()
	}
	return st
}
