// Package postgres provides a PostgreSQL document store built on gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"crewmate/internal/store"
)

// Document is one stored document row
type Document struct {
	Path       string `gorm:"primaryKey"`
	Collection string `gorm:"index:idx_documents_collection,priority:1;not null"`
	DocID      string `gorm:"index:idx_documents_collection,priority:2;not null"`
	Data       string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

// TableName pins the table name
func (Document) TableName() string {
	return "documents"
}

// DocumentStore persists documents in PostgreSQL.
type DocumentStore struct {
	db       *gorm.DB
	notifier *store.Notifier
}

// Open connects to PostgreSQL and migrates the documents table.
func Open(dsn string) (*DocumentStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection. The documents table must exist.
func New(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db, notifier: store.NewNotifier()}
}

// Close cancels subscriptions and closes the connection pool.
func (s *DocumentStore) Close() error {
	s.notifier.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the document at path.
func (s *DocumentStore) Get(ctx context.Context, path string) (store.Data, error) {
	var row Document
	if err := s.db.WithContext(ctx).Where("path = ?", path).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return decodeRow(row)
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
	res := s.db.WithContext(ctx).Where("path = ?", path).Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", path, res.Error)
	}
	if res.RowsAffected > 0 {
		s.notifier.Publish(path)
	}
	return nil
}

// List returns the direct children of a collection ordered by ID.
func (s *DocumentStore) List(ctx context.Context, collection string) ([]store.Document, error) {
	var rows []Document
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("doc_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		data, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: row.DocID, Path: row.Path, Data: data})
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

// Subscribe pushes the document's current snapshot after every change made
// through this store.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return store.WatchDocument(ctx, s.notifier, s.Get, path, fn), nil
}

// SubscribeCollection pushes the collection's documents after every change
// made through this store.
func (s *DocumentStore) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Document)) (store.CancelFunc, error) {
	return store.WatchCollection(ctx, s.notifier, s.List, collection, fn), nil
}

func (s *DocumentStore) write(
	ctx context.Context,
	path string,
	mutate func(existing store.Data, found bool) (store.Data, error),
) (store.Data, error) {
	var next store.Data
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Document
		var existing store.Data
		found := true

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("path = ?", path).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			found = false
		case err != nil:
			return fmt.Errorf("get %s: %w", path, err)
		default:
			existing, err = decodeRow(row)
			if err != nil {
				return err
			}
		}

		next, err = mutate(existing, found)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}

		collection, id := store.Split(path)
		row = Document{
			Path:       path,
			Collection: collection,
			DocID:      id,
			Data:       string(raw),
			UpdatedAt:  time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(path)
	return next, nil
}

func decodeRow(row Document) (store.Data, error) {
	var data store.Data
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", row.Path, err)
	}
	return data, nil
}
