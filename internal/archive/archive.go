// Package archive keeps extracted receipts in a local bbolt database so
// repeated runs can be listed without re-fetching or re-parsing.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperifyio/lidlreceipt/internal/receipt"
)

const bucketName = "receipts"

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("receipt not found")

// Record is one archived extraction.
type Record struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	ExtractedAt time.Time        `json:"extracted_at"`
	Receipt     *receipt.Receipt `json:"receipt"`
}

// Store is a bbolt-backed receipt archive.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces the record with rec.ID.
func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		return errors.New("archive: empty record id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(rec.ID), data)
	})
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records ordered by ID.
func (s *Store) List() ([]Record, error) {
	records := make([]Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
