package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/locus/internal/interfaces"
)

// KVStorage implements the KeyValueStorage interface for Badger.
// Keys are case-insensitive: they are trimmed and lowercased before use.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) *KVStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// load fetches the stored pair, mapping badgerhold's not-found to ErrKeyNotFound
func (s *KVStorage) load(key string) (*interfaces.KeyValuePair, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(key, &pair)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pair, err := s.load(normalizeKey(key))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return pair.Value, nil
}

// Set inserts or updates a key/value pair, preserving CreatedAt on update
func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalizedKey := normalizeKey(key)
	if normalizedKey == "" {
		return fmt.Errorf("key must not be empty")
	}

	now := time.Now()
	pair := interfaces.KeyValuePair{
		Key:         normalizedKey,
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.load(normalizedKey)
	created := errors.Is(err, interfaces.ErrKeyNotFound)
	switch {
	case err == nil:
		pair.CreatedAt = existing.CreatedAt
	case !created:
		return fmt.Errorf("failed to check key %q: %w", key, err)
	}

	if err := s.db.Store().Upsert(normalizedKey, &pair); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}

	s.logger.Debug().
		Str("key", normalizedKey).
		Bool("created", created).
		Int("bytes", len(value)).
		Msg("Key/value pair stored")

	return nil
}
