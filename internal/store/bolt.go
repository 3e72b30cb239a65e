package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var _ KV = (*BoltKV)(nil)

// BoltKV is a single-file KV for deployments without Redis. Expiry is kept
// next to the value and checked on read.
type BoltKV struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

var bucketKV = []byte("kv")

type boltEntry struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix nanoseconds, 0 = never
}

// OpenBolt opens (or creates) the database at path; prefix namespaces the bucket.
func OpenBolt(path, prefix string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &StoreError{Backend: "bolt", Op: "open", Err: err}
	}
	bkt := []byte(prefix + string(bucketKV))
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bkt)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, &StoreError{Backend: "bolt", Op: "create bucket", Err: err}
	}
	return &BoltKV{db: db, bucket: bkt, now: time.Now}, nil
}

func (s *BoltKV) Close() error { return s.db.Close() }

func (s *BoltKV) load(key string) (boltEntry, bool, error) {
	var e boltEntry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		found = e.ExpiresAt == 0 || s.now().UnixNano() < e.ExpiresAt
		return nil
	})
	return e, found, err
}

func (s *BoltKV) put(key string, e boltEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), b)
	})
}

func (s *BoltKV) Exists(_ context.Context, key string) (bool, error) {
	_, found, err := s.load(key)
	if err != nil {
		return false, &StoreError{Backend: "bolt", Op: "exists", Key: key, Err: err}
	}
	return found, nil
}

func (s *BoltKV) Get(_ context.Context, key string) (string, error) {
	e, found, err := s.load(key)
	if err != nil {
		return "", &StoreError{Backend: "bolt", Op: "get", Key: key, Err: err}
	}
	if !found {
		return "", ErrNotFound
	}
	return e.Value, nil
}

func (s *BoltKV) Set(_ context.Context, key, value string) error {
	if err := s.put(key, boltEntry{Value: value}); err != nil {
		return &StoreError{Backend: "bolt", Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *BoltKV) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	if ttl <= 0 {
		return &StoreError{Backend: "bolt", Op: "setex", Key: key, Err: errors.New("ttl must be positive")}
	}
	e := boltEntry{Value: value, ExpiresAt: s.now().Add(ttl).UnixNano()}
	if err := s.put(key, e); err != nil {
		return &StoreError{Backend: "bolt", Op: "setex", Key: key, Err: err}
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *BoltKV) Purge() (int, error) {
	now := s.now().UnixNano()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ExpiresAt != 0 && e.ExpiresAt <= now {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, &StoreError{Backend: "bolt", Op: "purge", Err: err}
	}
	return removed, nil
}
