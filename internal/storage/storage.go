// Package storage persists model bundles for the flow anomaly service.
// It uses BoltDB as the underlying storage engine: one bucket holds immutable bundles keyed by
// version, another holds the pointer to the active version.
//
// A training run is the only writer; inference and serving processes open the database
// read-only, load one bundle at startup and close it again.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bundlesBucket = "bundles" // Bucket name for immutable bundles, keyed by version
	metaBucket    = "meta"    // Bucket name for store-level pointers

	activeKey = "active"
	dbFile    = "flow-anomaly.db"
)

var (
	ErrNotFound = errors.New("bundle not found")
	ErrExists   = errors.New("bundle already exists")
)

// Store provides persistent storage for model bundles using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (creating if needed) the bundle database under dataPath for reading and writing.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dataPath, dbFile), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bundlesBucket)); err != nil {
			return fmt.Errorf("create bundles bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewReadOnly opens an existing bundle database with a shared lock.
func NewReadOnly(dataPath string) (*Store, error) {
	db, err := bbolt.Open(filepath.Join(dataPath, dbFile), 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Save persists b under b.Key, assigning a new key when it is empty, and returns the key.
// Existing keys are never overwritten.
func (s *Store) Save(b *Bundle) (string, error) {
	if b.Artifact == nil {
		return "", fmt.Errorf("save bundle: missing artifact")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Key == "" {
		b.Key = NewKey(b.CreatedAt)
	}
	if b.FormatVersion == 0 {
		b.FormatVersion = BundleFormatVersion
	}

	data, err := encodeBundle(b)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(bundlesBucket))
		if bk.Get([]byte(b.Key)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, b.Key)
		}
		return bk.Put([]byte(b.Key), data)
	})
	if err != nil {
		return "", err
	}
	return b.Key, nil
}

// Load returns the bundle stored under key.
func (s *Store) Load(key string) (*Bundle, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(bundlesBucket))
		if bk == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		v := bk.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b, err := decodeBundle(data)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", key, err)
	}
	return b, nil
}

// List returns all stored versions, newest first.
func (s *Store) List() ([]Version, error) {
	var versions []Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(bundlesBucket))
		if bk == nil {
			return nil
		}
		active := activeIn(tx)
		c := bk.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			b, err := decodeBundle(v)
			if err != nil {
				// Listing still shows bundles this build cannot apply.
				versions = append(versions, Version{Key: string(k), IsActive: string(k) == active})
				continue
			}
			versions = append(versions, Version{
				Key:       b.Key,
				CreatedAt: b.CreatedAt,
				Metrics:   b.Metrics,
				IsActive:  b.Key == active,
			})
		}
		return nil
	})
	return versions, err
}

// Latest returns the most recently created key.
func (s *Store) Latest() (string, error) {
	var key string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket([]byte(bundlesBucket))
		if bk == nil {
			return ErrNotFound
		}
		k, _ := bk.Cursor().Last()
		if k == nil {
			return ErrNotFound
		}
		key = string(k)
		return nil
	})
	return key, err
}

// Activate marks key as the bundle served by default.
func (s *Store) Activate(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bundlesBucket)).Get([]byte(key)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(key))
	})
}

// Active returns the active key.
func (s *Store) Active() (string, error) {
	var key string
	err := s.db.View(func(tx *bbolt.Tx) error {
		key = activeIn(tx)
		if key == "" {
			return ErrNotFound
		}
		return nil
	})
	return key, err
}

// Rollback activates the version created immediately before the active one.
func (s *Store) Rollback() (string, error) {
	var prev string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		active := activeIn(tx)
		if active == "" {
			return fmt.Errorf("no active version: %w", ErrNotFound)
		}
		c := tx.Bucket([]byte(bundlesBucket)).Cursor()
		k, _ := c.Seek([]byte(active))
		if k == nil || string(k) != active {
			return fmt.Errorf("active version %s: %w", active, ErrNotFound)
		}
		pk, _ := c.Prev()
		if pk == nil {
			return fmt.Errorf("no previous version available for rollback")
		}
		prev = string(pk)
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(prev))
	})
	return prev, err
}

// Resolve maps an empty key to the active version, falling back to the latest one.
func (s *Store) Resolve(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	if k, err := s.Active(); err == nil {
		return k, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return s.Latest()
}

func activeIn(tx *bbolt.Tx) string {
	m := tx.Bucket([]byte(metaBucket))
	if m == nil {
		return ""
	}
	return string(m.Get([]byte(activeKey)))
}
