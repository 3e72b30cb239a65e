package store

import (
	"context"
	"strconv"
)

// DefaultStatus means no status was ever set for the chat.
const DefaultStatus = -1

// StatusStore holds one integer per chat for conversational state machines.
// Reads and writes are not atomic with respect to each other; one poller
// per bot is assumed.
type StatusStore struct {
	kv KV
}

func NewStatusStore(kv KV) (*StatusStore, error) {
	if kv == nil {
		return nil, &ConfigurationError{Component: "status store", Backend: "key-value"}
	}
	return &StatusStore{kv: kv}, nil
}

// GetStatus returns the chat's status. A chat with no status gets def
// written back, so later reads see the same value.
func (s *StatusStore) GetStatus(ctx context.Context, chatID int64, def int) (int, error) {
	key := chatKey(chatID, "status")
	ok, err := s.kv.Exists(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		if err := s.kv.Set(ctx, key, strconv.Itoa(def)); err != nil {
			return def, err
		}
		return def, nil
	}
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		return def, err
	}
	status, err := strconv.Atoi(v)
	if err != nil {
		return def, &StoreError{Backend: "kv", Op: "parse status", Key: key, Err: err}
	}
	return status, nil
}

func (s *StatusStore) SetStatus(ctx context.Context, chatID int64, status int) error {
	return s.kv.Set(ctx, chatKey(chatID, "status"), strconv.Itoa(status))
}
