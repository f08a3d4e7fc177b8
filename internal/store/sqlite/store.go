// Package sqlite provides a SQLite-backed document store. Change
// notifications are delivered in process, so one database file serves one
// server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"crewmate/internal/store"
	"crewmate/internal/store/sqlite/migrations"
)

// DocumentStore persists documents in a single table keyed by path.
type DocumentStore struct {
	sqlDB    *sql.DB
	notifier *store.Notifier

	// serializes read-modify-write cycles so merges and increments are atomic
	writeMu sync.Mutex
}

// Open opens a SQLite document store and applies embedded migrations.
func Open(path string) (*DocumentStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &DocumentStore{sqlDB: sqlDB, notifier: store.NewNotifier()}, nil
}

// Close cancels subscriptions and closes the SQLite handle.
func (s *DocumentStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.notifier.Close()
	return s.sqlDB.Close()
}

// Get returns the document at path.
func (s *DocumentStore) Get(ctx context.Context, path string) (store.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return getDocument(ctx, s.sqlDB, path)
}

// Set writes the document, merging into the existing one when asked.
func (s *DocumentStore) Set(ctx context.Context, path string, data store.Data, opts ...store.SetOption) error {
	o := store.ApplySetOptions(opts)
	_, err := s.write(ctx, path, func(existing store.Data, found bool) (store.Data, error) {
		return store.ApplyWrite(existing, data, o.Merge)
	})
	return err
}

// Update merges fields into an existing document.
func (s *DocumentStore) Update(ctx context.Context, path string, data store.Data) error {
	_, err := s.write(ctx, path, func(existing store.Data, found bool) (store.Data, error) {
		if !found {
			return nil, store.ErrNotFound
		}
		return store.ApplyWrite(existing, data, true)
	})
	return err
}

// Delete removes the document at path.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.notifier.Publish(path)
	}
	return nil
}

// List returns the direct children of a collection ordered by ID.
func (s *DocumentStore) List(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT path, doc_id, data FROM documents WHERE collection = ? ORDER BY doc_id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]store.Document, 0)
	for rows.Next() {
		var doc store.Document
		var raw string
		if err := rows.Scan(&doc.Path, &doc.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Path, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

// Increment atomically adds delta to a numeric field and returns the result.
func (s *DocumentStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	next, err := s.write(ctx, path, func(existing store.Data, found bool) (store.Data, error) {
		return store.ApplyWrite(existing, store.Data{field: store.IncrementBy(delta)}, true)
	})
	if err != nil {
		return 0, err
	}
	return store.ToInt64(next[field])
}

// Subscribe pushes the document's current snapshot after every change.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return store.WatchDocument(ctx, s.notifier, s.Get, path, fn), nil
}

// SubscribeCollection pushes the collection's documents after every change.
func (s *DocumentStore) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Document)) (store.CancelFunc, error) {
	return store.WatchCollection(ctx, s.notifier, s.List, collection, fn), nil
}

func (s *DocumentStore) write(
	ctx context.Context,
	path string,
	mutate func(existing store.Data, found bool) (store.Data, error),
) (store.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write %s: %w", path, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getDocument(ctx, tx, path)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	next, err := mutate(existing, found)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}

	collection, id := store.Split(path)
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO documents (path, collection, doc_id, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		path,
		collection,
		id,
		string(raw),
		time.Now().UTC().UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", path, err)
	}

	s.notifier.Publish(path)
	return next, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, path string) (store.Data, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	var data store.Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}
