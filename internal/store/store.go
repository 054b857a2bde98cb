package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Collection names. Each skill writes its own collection and never another's.
const (
	Appointments  = "appointments"
	DrugDispatch  = "drug_dispatches"
	ClinicalNotes = "clinical_notes"
)

// ErrNotFound is returned when a record id does not exist in a collection.
var ErrNotFound = fmt.Errorf("store: record not found")

// Store is a local structured store keyed by record id, one bucket per
// logical collection. Values are JSON. Single-record operations are atomic.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store file and ensures all collections exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{Appointments, DrugDispatch, ClinicalNotes} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init collections: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Add inserts a record. It fails if the id already exists.
func (s *Store) Add(collection, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", collection, id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("store: unknown collection %q", collection)
		}
		if b.Get([]byte(id)) != nil {
			return fmt.Errorf("store: duplicate id %s/%s", collection, id)
		}
		return b.Put([]byte(id), data)
	})
}

// Update replaces an existing record. It fails if the id does not exist.
func (s *Store) Update(collection, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", collection, id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("store: unknown collection %q", collection)
		}
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Put([]byte(id), data)
	})
}

// Delete removes a record by id. Deleting a missing id is not an error.
func (s *Store) Delete(collection, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("store: unknown collection %q", collection)
		}
		return b.Delete([]byte(id))
	})
}

// Get decodes the record with the given id into v.
func (s *Store) Get(collection, id string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("store: unknown collection %q", collection)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

// GetAll invokes fn with the raw JSON of every record in the collection.
func (s *Store) GetAll(collection string, fn func(id string, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("store: unknown collection %q", collection)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}
