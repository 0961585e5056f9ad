package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/BearBump/TrackIntake/internal/csvcodec"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/BearBump/TrackIntake/internal/localsave"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/BearBump/TrackIntake/internal/records"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNoRecords         = errors.New("Keine Daten zum Exportieren vorhanden")
	ErrMixedPartners     = errors.New("Alle Datensätze müssen den gleichen ZUP + ABL haben")
	ErrInProgress        = errors.New("Export läuft bereits")
	ErrNoPendingDownload = errors.New("Kein ausstehender Download")
)

const (
	MessageUploadFailed   = "Upload fehlgeschlagen"
	MessageOfferDownload  = "Übertragung fehlgeschlagen. Möchten Sie die Datei stattdessen herunterladen?"
	MessageSaveCancelled  = "Download abgebrochen. Die Daten bleiben erhalten."
	DefaultDismissAfter   = 3 * time.Second
	DefaultUploadTimeout  = 30 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

type State string

const (
	StateIdle             State = "idle"
	StateExporting        State = "exporting"
	StateAwaitingDownload State = "awaiting_local_download"
)

type OutcomeKind string

const (
	OutcomeUploaded         OutcomeKind = "uploaded"
	OutcomeFailed           OutcomeKind = "failed"
	OutcomeRejected         OutcomeKind = "rejected"
	OutcomeAwaitingDownload OutcomeKind = "awaiting_download"
	OutcomeSaved            OutcomeKind = "saved"
	OutcomeCancelled        OutcomeKind = "cancelled"
)

// Outcome: то, что видит оператор после действия. DismissAfter задаёт автоскрытие уведомления.
type Outcome struct {
	Kind         OutcomeKind   `json:"kind"`
	Message      string        `json:"message"`
	Filename     string        `json:"filename,omitempty"`
	Path         string        `json:"path,omitempty"`
	RecordCount  int           `json:"recordCount,omitempty"`
	DismissAfter time.Duration `json:"-"`
	State        State         `json:"state"`
}

type Uploader interface {
	Upload(ctx context.Context, content []byte, filename string) error
}

type LocalSaver interface {
	Save(ctx context.Context, content []byte, filename string) (string, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type pendingDownload struct {
	content  []byte
	filename string
	records  []models.TrackingRecord
}

type Orchestrator struct {
	store    *records.Store
	uploader Uploader
	saver    LocalSaver
	producer Producer

	station        string
	topic          string
	requireUniform bool
	dismissAfter   time.Duration
	loc            *time.Location
	now            func() time.Time
	encode         func([]models.TrackingRecord) []byte
	publishTimeout time.Duration
	uploadTimeout  time.Duration

	mu      sync.Mutex
	state   State
	pending *pendingDownload

	startedAtUnixNano  int64
	lastExportUnixNano atomic.Int64
	totalExports       atomic.Int64
	totalUploaded      atomic.Int64
	totalFailed        atomic.Int64
	totalUnreachable   atomic.Int64
	totalSaved         atomic.Int64
	totalCancelled     atomic.Int64
	totalRecords       atomic.Int64
	lastErrorMu        sync.Mutex
	lastError          string
}

// New wires the orchestrator. saver and producer may be nil: without a saver the
// unreachable path still parks the document, ResolveDownload then fails.
func New(store *records.Store, uploader Uploader, saver LocalSaver, producer Producer, station string) *Orchestrator {
	return &Orchestrator{
		store:             store,
		uploader:          uploader,
		saver:             saver,
		producer:          producer,
		station:           station,
		topic:             messages.TopicExportCompleted,
		requireUniform:    true,
		dismissAfter:      DefaultDismissAfter,
		loc:               time.UTC,
		now:               time.Now,
		encode:            csvcodec.Document,
		publishTimeout:    defaultPublishTimeout,
		uploadTimeout:     DefaultUploadTimeout,
		state:             StateIdle,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (o *Orchestrator) WithSettings(requireUniformPartner bool, dismissAfter time.Duration, loc *time.Location) *Orchestrator {
	o.requireUniform = requireUniformPartner
	if dismissAfter > 0 {
		o.dismissAfter = dismissAfter
	}
	if loc != nil {
		o.loc = loc
	}
	return o
}

func (o *Orchestrator) WithTopic(topic string) *Orchestrator {
	if topic != "" {
		o.topic = topic
	}
	return o
}

// WithUploadTimeout bounds a single upload attempt. An attempt that runs out of time
// counts as unreachable, so the local download is offered.
func (o *Orchestrator) WithUploadTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.uploadTimeout = d
	}
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CanExport mirrors the export control: enabled iff there are records and nothing is in flight.
func (o *Orchestrator) CanExport() bool {
	return o.State() == StateIdle && o.store.Len() > 0
}

// PendingFilename returns the filename waiting for a local download decision.
func (o *Orchestrator) PendingFilename() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return "", false
	}
	return o.pending.filename, true
}

// Export serializes the store and hands it to the uploader.
// The returned Outcome is always filled; err classifies non-success results.
func (o *Orchestrator) Export(ctx context.Context) (Outcome, error) {
	recs, err := o.begin()
	if err != nil {
		return o.reject(err), err
	}
	o.totalExports.Add(1)
	o.lastExportUnixNano.Store(time.Now().UTC().UnixNano())

	filename := csvcodec.Filename(o.now().In(o.loc), recs[0].DeliveryPartnerID)
	content, err := o.document(recs)
	if err == nil {
		err = o.upload(ctx, content, filename)
	}

	switch {
	case err == nil:
		o.store.RemoveExported(ctx, recs)
		o.finish(StateIdle, nil)
		o.totalUploaded.Add(1)
		o.totalRecords.Add(int64(len(recs)))
		o.publish(ctx, filename, models.ExportChannelUpload, recs)
		slog.Info("export uploaded", "filename", filename, "records", len(recs))
		return Outcome{
			Kind:         OutcomeUploaded,
			Message:      fmt.Sprintf("Datei %s erfolgreich übertragen", filename),
			Filename:     filename,
			RecordCount:  len(recs),
			DismissAfter: o.dismissAfter,
			State:        StateIdle,
		}, nil

	case errors.Is(err, transfer.ErrUnreachable):
		o.finish(StateAwaitingDownload, &pendingDownload{content: content, filename: filename, records: recs})
		o.totalUnreachable.Add(1)
		o.setLastError(err)
		slog.Warn("export endpoint unreachable, offering local download", "filename", filename, "error", err.Error())
		return Outcome{
			Kind:        OutcomeAwaitingDownload,
			Message:     MessageOfferDownload,
			Filename:    filename,
			RecordCount: len(recs),
			State:       StateAwaitingDownload,
		}, err

	default:
		o.finish(StateIdle, nil)
		o.totalFailed.Add(1)
		o.setLastError(err)
		slog.Error("export failed", "filename", filename, "records", len(recs), "error", err.Error())
		return Outcome{
			Kind:         OutcomeFailed,
			Message:      MessageUploadFailed + ": " + err.Error(),
			Filename:     filename,
			RecordCount:  len(recs),
			DismissAfter: o.dismissAfter,
			State:        StateIdle,
		}, err
	}
}

// ResolveDownload answers the local-download prompt. Only a completed save clears the store.
func (o *Orchestrator) ResolveDownload(ctx context.Context, confirm bool) (Outcome, error) {
	o.mu.Lock()
	if o.state != StateAwaitingDownload || o.pending == nil {
		st := o.state
		o.mu.Unlock()
		return Outcome{Kind: OutcomeRejected, Message: ErrNoPendingDownload.Error(), DismissAfter: o.dismissAfter, State: st}, ErrNoPendingDownload
	}
	p := o.pending
	if !confirm {
		o.state, o.pending = StateIdle, nil
		o.mu.Unlock()
		return o.cancelled(p), nil
	}
	if o.saver == nil {
		o.mu.Unlock()
		err := errors.New("local download is not configured")
		return Outcome{Kind: OutcomeFailed, Message: err.Error(), Filename: p.filename, DismissAfter: o.dismissAfter, State: StateAwaitingDownload}, err
	}
	o.state = StateExporting
	o.mu.Unlock()

	path, err := o.saver.Save(ctx, p.content, p.filename)
	switch {
	case err == nil:
		o.store.RemoveExported(ctx, p.records)
		o.finish(StateIdle, nil)
		o.totalSaved.Add(1)
		o.totalRecords.Add(int64(len(p.records)))
		o.publish(ctx, p.filename, models.ExportChannelLocalDownload, p.records)
		slog.Info("export saved locally", "filename", p.filename, "path", path, "records", len(p.records))
		return Outcome{
			Kind:         OutcomeSaved,
			Message:      fmt.Sprintf("Datei %s heruntergeladen", p.filename),
			Filename:     p.filename,
			Path:         path,
			RecordCount:  len(p.records),
			DismissAfter: o.dismissAfter,
			State:        StateIdle,
		}, nil

	case errors.Is(err, localsave.ErrUserCancelled):
		o.finish(StateIdle, nil)
		return o.cancelled(p), nil

	default:
		// сохранение не удалось: документ остаётся в ожидании, можно повторить
		o.finish(StateAwaitingDownload, p)
		o.setLastError(err)
		slog.Error("local save failed", "filename", p.filename, "error", err.Error())
		return Outcome{
			Kind:         OutcomeFailed,
			Message:      err.Error(),
			Filename:     p.filename,
			DismissAfter: o.dismissAfter,
			State:        StateAwaitingDownload,
		}, err
	}
}

func (o *Orchestrator) begin() ([]models.TrackingRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return nil, ErrInProgress
	}
	recs := o.store.Snapshot()
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}
	if o.requireUniform {
		first := recs[0].DeliveryPartnerID
		for _, r := range recs[1:] {
			if r.DeliveryPartnerID != first {
				return nil, ErrMixedPartners
			}
		}
	}
	o.state = StateExporting
	return recs, nil
}

func (o *Orchestrator) finish(st State, p *pendingDownload) {
	o.mu.Lock()
	o.state, o.pending = st, p
	o.mu.Unlock()
}

func (o *Orchestrator) reject(err error) Outcome {
	return Outcome{Kind: OutcomeRejected, Message: err.Error(), DismissAfter: o.dismissAfter, State: o.State()}
}

func (o *Orchestrator) cancelled(p *pendingDownload) Outcome {
	o.totalCancelled.Add(1)
	slog.Info("local download cancelled", "filename", p.filename, "records", len(p.records))
	return Outcome{
		Kind:         OutcomeCancelled,
		Message:      MessageSaveCancelled,
		Filename:     p.filename,
		RecordCount:  len(p.records),
		DismissAfter: o.dismissAfter,
		State:        StateIdle,
	}
}

// upload runs one attempt under uploadTimeout, so a stalled transport cannot keep the
// orchestrator in StateExporting.
func (o *Orchestrator) upload(ctx context.Context, content []byte, filename string) error {
	uctx, cancel := context.WithTimeout(ctx, o.uploadTimeout)
	defer cancel()

	err := o.uploader.Upload(uctx, content, filename)
	if err != nil && ctx.Err() == nil && errors.Is(uctx.Err(), context.DeadlineExceeded) {
		return transfer.Unreachable(errors.Wrapf(err, "upload timed out after %s", o.uploadTimeout))
	}
	return err
}

// document never panics out: a failing encoder is reported as an ordinary error.
func (o *Orchestrator) document(recs []models.TrackingRecord) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("serialize csv: %v", r)
		}
	}()
	return o.encode(recs), nil
}

func (o *Orchestrator) publish(ctx context.Context, filename, channel string, recs []models.TrackingRecord) {
	if o.producer == nil {
		return
	}
	codes := make([]string, 0, len(recs))
	for _, r := range recs {
		codes = append(codes, r.RawCode)
	}
	msg := messages.ExportCompleted{
		BatchID:           uuid.NewString(),
		Filename:          filename,
		DeliveryPartnerID: recs[0].DeliveryPartnerID,
		Channel:           channel,
		Station:           o.station,
		RecordCount:       len(recs),
		Codes:             codes,
		CompletedAt:       o.now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal export event", "error", err.Error())
		return
	}

	// событие вторично: файл уже передан, ошибку только логируем
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishTimeout)
	defer cancel()
	if err := o.producer.Publish(pctx, o.topic, []byte(msg.BatchID), b); err != nil {
		slog.Warn("publish export event", "batch_id", msg.BatchID, "error", err.Error())
	}
}

func (o *Orchestrator) setLastError(err error) {
	o.lastErrorMu.Lock()
	o.lastError = err.Error()
	o.lastErrorMu.Unlock()
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	State            State      `json:"state"`
	PendingRecords   int        `json:"pendingRecords"`
	LastExportAt     *time.Time `json:"lastExportAt,omitempty"`
	TotalExports     int64      `json:"totalExports"`
	TotalUploaded    int64      `json:"totalUploaded"`
	TotalFailed      int64      `json:"totalFailed"`
	TotalUnreachable int64      `json:"totalUnreachable"`
	TotalSaved       int64      `json:"totalSaved"`
	TotalCancelled   int64      `json:"totalCancelled"`
	RecordsExported  int64      `json:"recordsExported"`
	LastError        string     `json:"lastError,omitempty"`
}

func (o *Orchestrator) Stats() Stats {
	st := Stats{
		StartedAt:        time.Unix(0, o.startedAtUnixNano).UTC(),
		State:            o.State(),
		PendingRecords:   o.store.Len(),
		TotalExports:     o.totalExports.Load(),
		TotalUploaded:    o.totalUploaded.Load(),
		TotalFailed:      o.totalFailed.Load(),
		TotalUnreachable: o.totalUnreachable.Load(),
		TotalSaved:       o.totalSaved.Load(),
		TotalCancelled:   o.totalCancelled.Load(),
		RecordsExported:  o.totalRecords.Load(),
	}
	if n := o.lastExportUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastExportAt = &t
	}
	o.lastErrorMu.Lock()
	st.LastError = o.lastError
	o.lastErrorMu.Unlock()
	return st
}
