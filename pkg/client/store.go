package client

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Secure store keys written after a successful registration.
const (
	CachedDeviceTokenKey = "cached_device_token"
	CachedTagsKey        = "cached_tags"
)

const storeBucket = "pushhub"

// SecureStore is the device-local key/value store. Get returns "" for a
// missing key.
type SecureStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// BoltStore is a SecureStore backed by a single bbolt bucket.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database at path with owner-only
// permissions.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(storeBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(storeBucket))
		if b == nil {
			return errors.New("store bucket missing")
		}
		value = string(b.Get([]byte(key)))
		return nil
	})
	return value, err
}

func (s *BoltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(storeBucket))
		if b == nil {
			return errors.New("store bucket missing")
		}
		if err := b.Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("error setting %s key: %w", key, err)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
