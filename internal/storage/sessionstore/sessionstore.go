package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/TrackIntake/internal/cache"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/pkg/errors"
)

const DefaultKey = "scannedData"

// Store keeps the session's records as one JSON blob under a fixed key.
type Store struct {
	cache cache.BytesCache
	key   string
	ttl   time.Duration
}

func New(c cache.BytesCache, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{cache: c, key: key}
}

// WithTTL bounds how long an abandoned session survives. Zero keeps it forever.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func (s *Store) Key() string { return s.key }

// Load returns nil, nil when nothing was persisted.
func (s *Store) Load(ctx context.Context) ([]models.TrackingRecord, error) {
	b, ok, err := s.cache.Get(ctx, s.key)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	var recs []models.TrackingRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return recs, nil
}

func (s *Store) Save(ctx context.Context, recs []models.TrackingRecord) error {
	if recs == nil {
		recs = []models.TrackingRecord{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return errors.Wrap(s.cache.Set(ctx, s.key, b, s.ttl), "save session")
}

func (s *Store) Clear(ctx context.Context) error {
	return errors.Wrap(s.cache.Del(ctx, s.key), "clear session")
}
