package pgexports

import (
	"context"
	"time"

	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ApplyExport journals one export. A batch id seen before is ignored (at-least-once delivery).
// Reports whether a new row was written.
func (s *Storage) ApplyExport(ctx context.Context, e models.ExportEntry) (bool, error) {
	if e.BatchID == "" {
		return false, errors.New("batch_id is required")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now().UTC()
	}
	if e.RecordCount == 0 {
		e.RecordCount = len(e.Codes)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO exports (
  batch_id, filename, delivery_partner_id, channel, station, record_count, completed_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, now())
ON CONFLICT (batch_id) DO NOTHING
`, e.BatchID, e.Filename, e.DeliveryPartnerID, e.Channel, e.Station, e.RecordCount, e.CompletedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "insert export")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if len(e.Codes) > 0 {
		rows := make([][]any, 0, len(e.Codes))
		for i, c := range e.Codes {
			rows = append(rows, []any{e.BatchID, i + 1, c})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"export_records"},
			[]string{"batch_id", "position", "raw_code"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return false, errors.Wrap(err, "copy export records")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit tx")
	}
	return true, nil
}

// ListExports returns journal rows newest first, without codes.
func (s *Storage) ListExports(ctx context.Context, limit, offset int) ([]*models.ExportEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT batch_id, filename, delivery_partner_id, channel, station, record_count, completed_at, created_at
FROM exports
ORDER BY completed_at DESC, batch_id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select exports")
	}
	defer rows.Close()

	out := []*models.ExportEntry{}
	for rows.Next() {
		var e models.ExportEntry
		if err := rows.Scan(
			&e.BatchID, &e.Filename, &e.DeliveryPartnerID, &e.Channel, &e.Station,
			&e.RecordCount, &e.CompletedAt, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan export")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetExport returns one batch with its codes in export order. ok is false when the batch is unknown.
func (s *Storage) GetExport(ctx context.Context, batchID string) (*models.ExportEntry, bool, error) {
	var e models.ExportEntry
	err := s.db.QueryRow(ctx, `
SELECT batch_id, filename, delivery_partner_id, channel, station, record_count, completed_at, created_at
FROM exports
WHERE batch_id = $1
`, batchID).Scan(
		&e.BatchID, &e.Filename, &e.DeliveryPartnerID, &e.Channel, &e.Station,
		&e.RecordCount, &e.CompletedAt, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select export")
	}

	rows, err := s.db.Query(ctx, `SELECT raw_code FROM export_records WHERE batch_id = $1 ORDER BY position`, batchID)
	if err != nil {
		return nil, false, errors.Wrap(err, "select export records")
	}
	defer rows.Close()

	e.Codes = []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, false, errors.Wrap(err, "scan export record")
		}
		e.Codes = append(e.Codes, c)
	}
	if rows.Err() != nil {
		return nil, false, errors.Wrap(rows.Err(), "rows")
	}
	return &e, true, nil
}

// FindBatchesByCode lists batch ids that contained rawCode, newest first.
func (s *Storage) FindBatchesByCode(ctx context.Context, rawCode string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT r.batch_id
FROM export_records r
JOIN exports e ON e.batch_id = r.batch_id
WHERE r.raw_code = $1
ORDER BY e.completed_at DESC
`, rawCode)
	if err != nil {
		return nil, errors.Wrap(err, "select batches by code")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan batch id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
