package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ApplyExport(ctx context.Context, e models.ExportEntry) (bool, error)
	ListExports(ctx context.Context, limit, offset int) ([]*models.ExportEntry, error)
	GetExport(ctx context.Context, batchID string) (*models.ExportEntry, bool, error)
	FindBatchesByCode(ctx context.Context, rawCode string) ([]string, error)
}

type Service struct {
	repo Repository

	startedAtUnixNano int64
	lastApplyUnixNano atomic.Int64
	totalApplied      atomic.Int64
	totalDuplicates   atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository) *Service {
	return &Service{repo: repo, startedAtUnixNano: time.Now().UTC().UnixNano()}
}

// ApplyExportCompleted journals one export.completed event. Redelivered batches are no-ops.
func (s *Service) ApplyExportCompleted(ctx context.Context, msg messages.ExportCompleted) error {
	if msg.BatchID == "" {
		return errors.New("batch_id is required")
	}
	if msg.CompletedAt.IsZero() {
		msg.CompletedAt = time.Now().UTC()
	}

	inserted, err := s.repo.ApplyExport(ctx, models.ExportEntry{
		BatchID:           msg.BatchID,
		Filename:          msg.Filename,
		DeliveryPartnerID: msg.DeliveryPartnerID,
		Channel:           msg.Channel,
		Station:           msg.Station,
		RecordCount:       msg.RecordCount,
		Codes:             msg.Codes,
		CompletedAt:       msg.CompletedAt,
	})
	if err != nil {
		s.totalErrors.Add(1)
		s.lastErrorMu.Lock()
		s.lastError = err.Error()
		s.lastErrorMu.Unlock()
		return err
	}

	s.lastApplyUnixNano.Store(time.Now().UTC().UnixNano())
	if !inserted {
		s.totalDuplicates.Add(1)
		slog.Info("export already journaled", "batch_id", msg.BatchID)
		return nil
	}
	s.totalApplied.Add(1)
	slog.Info("export journaled", "batch_id", msg.BatchID, "filename", msg.Filename, "records", msg.RecordCount)
	return nil
}

func (s *Service) ListExports(ctx context.Context, limit, offset int) ([]*models.ExportEntry, error) {
	return s.repo.ListExports(ctx, limit, offset)
}

func (s *Service) GetExport(ctx context.Context, batchID string) (*models.ExportEntry, bool, error) {
	if batchID == "" {
		return nil, false, errors.New("batchId is required")
	}
	return s.repo.GetExport(ctx, batchID)
}

func (s *Service) FindBatchesByCode(ctx context.Context, rawCode string) ([]string, error) {
	if rawCode == "" {
		return []string{}, nil
	}
	return s.repo.FindBatchesByCode(ctx, rawCode)
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastApplyAt     *time.Time `json:"lastApplyAt,omitempty"`
	TotalApplied    int64      `json:"totalApplied"`
	TotalDuplicates int64      `json:"totalDuplicates"`
	TotalErrors     int64      `json:"totalErrors"`
	LastError       string     `json:"lastError,omitempty"`
}

func (s *Service) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalApplied:    s.totalApplied.Load(),
		TotalDuplicates: s.totalDuplicates.Load(),
		TotalErrors:     s.totalErrors.Load(),
	}
	if n := s.lastApplyUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastApplyAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}
