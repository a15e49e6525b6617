// Package gormstore implements the document store on a SQL database through
// GORM. Documents live in a single table as JSON payloads; change
// notification is process-local.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"playroom/internal/store"
)

// Document is the persisted row for one document.
type Document struct {
	ID         uint   `gorm:"primaryKey"`
	Collection string `gorm:"not null;uniqueIndex:idx_documents_key;index:idx_documents_collection"`
	DocID      string `gorm:"not null;uniqueIndex:idx_documents_key"`
	Data       string `gorm:"type:json;not null"`
}

// TableName specifies the table name for GORM.
func (Document) TableName() string {
	return "documents"
}

// Store is a GORM-backed document store. Merge writes run in a transaction
// with a row lock, so single-key atomicity holds across connections sharing
// the database.
type Store struct {
	db       *gorm.DB
	log      *slog.Logger
	notifier *store.Notifier
}

// New migrates the documents table and returns the store.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &Store{db: db, log: log, notifier: store.NewNotifier()}, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key store.Key) (store.Snapshot, error) {
	var row Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", key.Collection, key.ID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Snapshot{Key: key}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("get %s: %w", key, err)
	}
	var data store.Doc
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return store.Snapshot{Key: key, Exists: true, Data: data}, nil
}

// SetMerge implements store.Store.
func (s *Store) SetMerge(ctx context.Context, key store.Key, fields store.Doc) error {
	normalized, err := store.Normalize(fields)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND doc_id = ?", key.Collection, key.ID).
			First(&row).Error

		var base store.Doc
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(row.Data), &base); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}

		out, err := json.Marshal(store.Merge(base, normalized))
		if err != nil {
			return err
		}

		if row.ID == 0 {
			return tx.Create(&Document{Collection: key.Collection, DocID: key.ID, Data: string(out)}).Error
		}
		return tx.Model(&row).Update("data", string(out)).Error
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", key, err)
	}

	s.notifier.Publish(key)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key store.Key) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", key.Collection, key.ID).
		Delete(&Document{}).Error
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.notifier.Publish(key)
	return nil
}

// GetQuery implements store.Store. Filtering happens in Go; collections in
// this system stay small enough that a full collection scan is acceptable.
func (s *Store) GetQuery(ctx context.Context, q store.Query) (store.QuerySnapshot, error) {
	var rows []Document
	err := s.db.WithContext(ctx).
		Where("collection = ?", q.Collection).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return store.QuerySnapshot{}, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	var docs []store.Snapshot
	for _, row := range rows {
		var data store.Doc
		if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
			return store.QuerySnapshot{}, fmt.Errorf("decode %s/%s: %w", row.Collection, row.DocID, err)
		}
		if store.Matches(data, q) {
			docs = append(docs, store.Snapshot{
				Key:    store.Key{Collection: row.Collection, ID: row.DocID},
				Exists: true,
				Data:   data,
			})
		}
	}

	store.SortDocs(docs, q.OrderBy)
	return store.QuerySnapshot{Docs: docs}, nil
}

// Watch implements store.Store.
func (s *Store) Watch(ctx context.Context, key store.Key) (*store.DocWatch, error) {
	return s.notifier.WatchDoc(ctx, key, func(ctx context.Context) (store.Snapshot, error) {
		return s.Get(ctx, key)
	}, s.watchErrLogger(key.String())), nil
}

// WatchQuery implements store.Store.
func (s *Store) WatchQuery(ctx context.Context, q store.Query) (*store.QueryWatch, error) {
	return s.notifier.WatchColl(ctx, q.Collection, func(ctx context.Context) (store.QuerySnapshot, error) {
		return s.GetQuery(ctx, q)
	}, s.watchErrLogger(q.Collection)), nil
}

func (s *Store) watchErrLogger(target string) func(error) {
	return func(err error) {
		s.log.Error("watch refetch failed", "target", target, "error", err)
	}
}
