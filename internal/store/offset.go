package store

import (
	"context"
	"errors"
	"strconv"
)

const DefaultOffsetKey = "offset"

var _ OffsetStore = (*KVOffsetStore)(nil)

// KVOffsetStore keeps the offset under a single key.
type KVOffsetStore struct {
	kv  KV
	key string
}

func NewKVOffsetStore(kv KV, key string) (*KVOffsetStore, error) {
	if kv == nil {
		return nil, &ConfigurationError{Component: "offset store", Backend: "key-value"}
	}
	if key == "" {
		key = DefaultOffsetKey
	}
	return &KVOffsetStore{kv: kv, key: key}, nil
}

func (s *KVOffsetStore) LoadOffset(ctx context.Context) (int64, error) {
	v, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	offset, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &StoreError{Backend: "kv", Op: "parse offset", Key: s.key, Err: err}
	}
	return offset, nil
}

func (s *KVOffsetStore) SaveOffset(ctx context.Context, offset int64) error {
	return s.kv.Set(ctx, s.key, strconv.FormatInt(offset, 10))
}
