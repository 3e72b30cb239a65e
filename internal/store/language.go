package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/i18n"
)

// LanguageTTL is how long a cached language stays fresh.
const LanguageTTL = 24 * time.Hour

// LanguageRepository is the durable side of the language store.
type LanguageRepository interface {
	// GetLanguage returns ErrNotFound for an unknown chat.
	GetLanguage(ctx context.Context, chatID int64) (string, error)
	SetLanguage(ctx context.Context, chatID int64, lang string) error
}

// LanguageStore reads languages through the cache, falling back to the
// durable repository. Either side may be nil.
type LanguageStore struct {
	db    LanguageRepository
	cache KV
	ttl   time.Duration
	log   zerolog.Logger
}

func NewLanguageStore(db LanguageRepository, cache KV, log zerolog.Logger) *LanguageStore {
	return &LanguageStore{db: db, cache: cache, ttl: LanguageTTL, log: log}
}

func (s *LanguageStore) GetLanguage(ctx context.Context, chatID int64) (string, error) {
	key := chatKey(chatID, "language")
	if s.cache != nil {
		lang, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			return lang, nil
		case !errors.Is(err, ErrNotFound):
			s.log.Warn().Err(err).Int64("chat_id", chatID).Msg("language cache read failed")
		}
	}

	lang := i18n.Default
	if s.db != nil {
		v, err := s.db.GetLanguage(ctx, chatID)
		switch {
		case err == nil:
			lang = v
		case errors.Is(err, ErrNotFound):
		default:
			return "", err
		}
	}

	if s.cache != nil {
		if err := s.cache.SetEx(ctx, key, s.ttl, lang); err != nil {
			s.log.Warn().Err(err).Int64("chat_id", chatID).Msg("language cache refresh failed")
		}
	}
	return lang, nil
}

// SetLanguage writes the durable store first; the cache refresh after it is best effort.
// lang is reduced to its primary subtag before storing, so "pt-BR" is stored
// and later read back as "pt".
func (s *LanguageStore) SetLanguage(ctx context.Context, chatID int64, lang string) error {
	if s.db == nil {
		return &ConfigurationError{Component: "language store", Backend: "database"}
	}
	code := i18n.Normalize(lang)
	if code == "" {
		return fmt.Errorf("language store: invalid language code %q", lang)
	}
	if err := s.db.SetLanguage(ctx, chatID, code); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.SetEx(ctx, chatKey(chatID, "language"), s.ttl, code); err != nil {
			s.log.Warn().Err(err).Int64("chat_id", chatID).Msg("language cache refresh failed")
		}
	}
	return nil
}
