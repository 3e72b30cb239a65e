package store

import (
	"context"
	"errors"
	"time"
)

// memKV is an in-memory KV for tests; ttls are recorded, not enforced.
type memKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	sets   int
	setErr error
	getErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Exists(_ context.Context, key string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	_, ok := m.data[key]
	return ok, nil
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	delete(m.ttls, key)
	return nil
}

func (m *memKV) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Close() error { return nil }

// memLanguages is an in-memory LanguageRepository.
type memLanguages struct {
	langs  map[int64]string
	reads  int
	setErr error
}

func newMemLanguages() *memLanguages { return &memLanguages{langs: map[int64]string{}} }

func (m *memLanguages) GetLanguage(_ context.Context, chatID int64) (string, error) {
	m.reads++
	v, ok := m.langs[chatID]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memLanguages) SetLanguage(_ context.Context, chatID int64, lang string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.langs[chatID] = lang
	return nil
}

var errBackend = errors.New("backend down")
