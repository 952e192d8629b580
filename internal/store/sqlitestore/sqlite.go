package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"sphexbot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_list (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_list_key ON kv_list (key, id);
CREATE TABLE IF NOT EXISTS kv_set (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
CREATE TABLE IF NOT EXISTS kv_hash (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, field)
);
CREATE TABLE IF NOT EXISTS kv_zset (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	score  REAL NOT NULL,
	PRIMARY KEY (key, member)
);
CREATE INDEX IF NOT EXISTS kv_zset_score ON kv_zset (key, score, member);
`

var tables = []string{"kv_list", "kv_set", "kv_hash", "kv_zset"}

// Store implements store.Store on a single SQLite database file. All
// access goes through one connection; SQLite's busy timeout covers other
// processes sharing the file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn. A plain path is
// turned into a DSN with WAL and a busy timeout.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = normalizeDSN(dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &Store{db: db}, nil
}

func normalizeDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "file::memory:"
	}
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (s *Store) ListAppend(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_list (key, value) VALUES (?, ?)`, key, value)
	return store.Wrap("list append", key, err)
}

func (s *Store) ListRange(ctx context.Context, key string) ([]string, error) {
	values, err := s.queryStrings(ctx, `SELECT value FROM kv_list WHERE key = ? ORDER BY id`, key)
	return values, store.Wrap("list range", key, err)
}

func (s *Store) ListDropFront(ctx context.Context, key string, n int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_list WHERE id IN (
		SELECT id FROM kv_list WHERE key = ? ORDER BY id LIMIT ?)`, key, n)
	return store.Wrap("list drop front", key, err)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("delete", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE key = ?`, key); err != nil {
				return store.Wrap("delete", key, err)
			}
		}
	}
	return store.Wrap("delete", "", tx.Commit())
}

func (s *Store) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("set add", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, member := range members {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO kv_set (key, member) VALUES (?, ?)`, key, member); err != nil {
			return store.Wrap("set add", key, err)
		}
	}
	return store.Wrap("set add", key, tx.Commit())
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.queryStrings(ctx, `SELECT member FROM kv_set WHERE key = ? ORDER BY member`, key)
	return members, store.Wrap("set members", key, err)
}

func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("hash set", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	for field, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_hash (key, field, value) VALUES (?, ?, ?)
			 ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`,
			key, field, value); err != nil {
			return store.Wrap("hash set", key, err)
		}
	}
	return store.Wrap("hash set", key, tx.Commit())
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM kv_hash WHERE key = ?`, key)
	if err != nil {
		return nil, store.Wrap("hash get", key, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, store.Wrap("hash get", key, err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("hash get", key, err)
	}
	return fields, nil
}

func (s *Store) SortedAdd(ctx context.Context, key string, member string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_zset (key, member, score) VALUES (?, ?, ?)
		 ON CONFLICT (key, member) DO UPDATE SET score = excluded.score`,
		key, member, score)
	return store.Wrap("sorted add", key, err)
}

func (s *Store) SortedRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := s.queryStrings(ctx,
		`SELECT member FROM kv_zset WHERE key = ? AND score >= ? AND score <= ? ORDER BY score, member`,
		key, min, max)
	return members, store.Wrap("sorted range", key, err)
}

func (s *Store) SortedRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("sorted remove", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, member := range members {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_zset WHERE key = ? AND member = ?`, key, member); err != nil {
			return store.Wrap("sorted remove", key, err)
		}
	}
	return store.Wrap("sorted remove", key, tx.Commit())
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
