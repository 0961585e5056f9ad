package records

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/BearBump/TrackIntake/internal/models"
)

// Persister is called after every mutation of the store.
type Persister interface {
	Save(ctx context.Context, records []models.TrackingRecord) error
	Clear(ctx context.Context) error
}

// Store: упорядоченный список записей текущей сессии.
// Все мутации сериализуются мьютексом; порядок вставки сохраняется.
type Store struct {
	mu      sync.Mutex
	records []models.TrackingRecord
	persist Persister
}

// NewStore creates a store seeded with restored records. p may be nil.
func NewStore(p Persister, restored []models.TrackingRecord) *Store {
	recs := make([]models.TrackingRecord, len(restored))
	copy(recs, restored)
	return &Store{records: recs, persist: p}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of the records in insertion order.
func (s *Store) Snapshot() []models.TrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []models.TrackingRecord {
	out := make([]models.TrackingRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Contains is the duplicate check against the current state. It never mutates.
func (s *Store) Contains(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return IsDuplicate(code, s.records)
}

// Insert runs the duplicate check and appends build(seq) atomically. seq is the store
// length, raised to the highest numeric id still held, so ids never repeat after Remove.
func (s *Store) Insert(ctx context.Context, code string, build func(sequenceLength int) models.TrackingRecord) (models.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if IsDuplicate(code, s.records) {
		return models.TrackingRecord{}, ErrDuplicate
	}
	rec := build(s.sequenceLocked())
	s.records = append(s.records, rec)
	s.saveLocked(ctx)
	return rec, nil
}

func (s *Store) sequenceLocked() int {
	seq := len(s.records)
	for _, r := range s.records {
		if n, err := strconv.Atoi(r.ID); err == nil && n > seq {
			seq = n
		}
	}
	return seq
}

// Remove deletes the records with the given ids and returns how many were removed.
// Remaining ids are not renumbered.
func (s *Store) Remove(ctx context.Context, ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[strings.TrimSpace(id)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0:0]
	for _, r := range s.records {
		if _, ok := drop[r.ID]; ok {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(s.records) - len(kept)
	if removed == 0 {
		return 0
	}
	s.records = kept
	s.saveLocked(ctx)
	return removed
}

// Clear empties the store and wipes persisted state.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	if s.persist == nil {
		return
	}
	if err := s.persist.Clear(ctx); err != nil {
		slog.Warn("clear persisted records", "error", err.Error())
	}
}

func (s *Store) saveLocked(ctx context.Context) {
	if s.persist == nil {
		return
	}
	// Ошибка сохранения не откатывает мутацию: сессия хранится по принципу best effort.
	if err := s.persist.Save(ctx, s.snapshotLocked()); err != nil {
		slog.Warn("persist records", "count", len(s.records), "error", err.Error())
	}
}

// RemoveExported drops the exported records by raw code. Records accepted after the export
// snapshot survive. When nothing is left, persisted state is wiped like Clear.
func (s *Store) RemoveExported(ctx context.Context, exported []models.TrackingRecord) int {
	codes := make(map[string]struct{}, len(exported))
	for _, r := range exported {
		codes[r.RawCode] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0:0]
	for _, r := range s.records {
		if _, ok := codes[r.RawCode]; ok {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(s.records) - len(kept)

	if len(kept) == 0 {
		s.records = nil
		if s.persist != nil {
			if err := s.persist.Clear(ctx); err != nil {
				slog.Warn("clear persisted records", "error", err.Error())
			}
		}
		return removed
	}
	if removed > 0 {
		s.records = kept
		s.saveLocked(ctx)
	}
	return removed
}
