package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/restpad/restpad/internal/errdef"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps documents in a single kv table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at path. ":memory:" is
// accepted for throwaway stores.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errdef.New(errdef.CodeConfig, "sqlite backend requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create sqlite dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open sqlite %s", path)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeStorage, err, "create kv table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(key string, dst any) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errdef.Wrap(errdef.CodeStorage, err, "query %s", key)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, errdef.Wrap(errdef.CodeStorage, err, "decode %s", key)
	}
	return true, nil
}

func (s *SQLiteStore) Save(key string, value any) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode %s", key)
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		string(data),
		time.Now().Unix(),
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "upsert %s", key)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
