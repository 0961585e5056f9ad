package pgexports

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS exports (
  batch_id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  delivery_partner_id TEXT NOT NULL,
  channel TEXT NOT NULL,
  station TEXT NOT NULL,
  record_count INT NOT NULL,
  completed_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_completed_at ON exports(completed_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS export_records (
  batch_id TEXT NOT NULL REFERENCES exports(batch_id) ON DELETE CASCADE,
  position INT NOT NULL,
  raw_code TEXT NOT NULL,
  PRIMARY KEY (batch_id, position)
)`,
		// поиск "в какой выгрузке ушёл этот код"
		`CREATE INDEX IF NOT EXISTS idx_export_records_raw_code ON export_records(raw_code)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
