package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackIntake/config"
	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu      sync.Mutex
	entries map[string]models.ExportEntry
	order   []string
	pingErr error
}

func newMemRepo() *memRepo { return &memRepo{entries: map[string]models.ExportEntry{}} }

func (r *memRepo) ApplyExport(ctx context.Context, e models.ExportEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.BatchID]; ok {
		return false, nil
	}
	r.entries[e.BatchID] = e
	r.order = append(r.order, e.BatchID)
	return true, nil
}

func (r *memRepo) ListExports(ctx context.Context, limit, offset int) ([]*models.ExportEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.ExportEntry{}
	for _, id := range r.order {
		e := r.entries[id]
		out = append(out, &e)
	}
	return out, nil
}

func (r *memRepo) GetExport(ctx context.Context, batchID string) (*models.ExportEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[batchID]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (r *memRepo) FindBatchesByCode(ctx context.Context, rawCode string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, id := range r.order {
		for _, c := range r.entries[id].Codes {
			if c == rawCode {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) Ping(ctx context.Context) error { return r.pingErr }

type chanConsumer struct {
	msgs   []messages.ExportCompleted
	closed bool
}

func (c *chanConsumer) ConsumeExports(ctx context.Context, handler func(ctx context.Context, msg messages.ExportCompleted) error) error {
	for _, m := range c.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *chanConsumer) Close() error {
	c.closed = true
	return nil
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestResolveJournalOpts_Defaults(t *testing.T) {
	opts := resolveJournalOpts(&config.Config{}, "sw.json")
	require.Equal(t, messages.TopicExportCompleted, opts.topic)
	require.Equal(t, "intake-journal", opts.consumerGroup)
	require.Equal(t, ":8082", opts.httpAddr)

	opts = resolveJournalOpts(&config.Config{
		Kafka:  config.KafkaConfig{ExportCompletedTopicName: "t", ConsumerGroup: "g"},
		Intake: config.IntakeConfig{JournalHTTPAddr: ":9999"},
	}, "")
	require.Equal(t, "t", opts.topic)
	require.Equal(t, "g", opts.consumerGroup)
	require.Equal(t, ":9999", opts.httpAddr)
}

func TestRunIntakeJournal_AppliesAndServes(t *testing.T) {
	sw := filepath.Join(t.TempDir(), "journal.swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	repo := newMemRepo()
	msg := messages.ExportCompleted{
		BatchID: "b-1", Filename: "202503040506_345_Trackingdaten_dvs.csv", DeliveryPartnerID: "345",
		Channel: "upload", Station: "4202", RecordCount: 1, Codes: []string{"DVSC1"}, CompletedAt: time.Now().UTC(),
	}
	consumer := &chanConsumer{msgs: []messages.ExportCompleted{msg, msg}}
	closed := false

	f := journalFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (journalRepository, func(), error) {
			return repo, func() { closed = true }, nil
		},
		newConsumer: func(cfg *config.Config, topic, group string) exportConsumer { return consumer },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := resolveJournalOpts(&config.Config{}, sw)
	opts.httpAddr = "127.0.0.1:0"
	opts.onListen = func(addr string) { addrCh <- addr }

	errCh := make(chan error, 1)
	go func() { errCh <- RunIntakeJournal(ctx, &config.Config{}, opts, f) }()
	base := "http://" + <-addrCh

	require.Eventually(t, func() bool {
		_, ok, _ := repo.GetExport(context.Background(), "b-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	var stats map[string]any
	require.Eventually(t, func() bool {
		getJSON(t, base+"/stats", &stats)
		return stats["totalDuplicates"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, float64(1), stats["totalApplied"])

	var entry models.ExportEntry
	require.Equal(t, http.StatusOK, getJSON(t, base+"/exports/b-1", &entry))
	require.Equal(t, "345", entry.DeliveryPartnerID)

	var notFound map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, base+"/exports/nope", &notFound))

	var byCode struct {
		BatchIDs []string `json:"batchIds"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/exports?code=DVSC1", &byCode))
	require.Equal(t, []string{"b-1"}, byCode.BatchIDs)

	var ready map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, base+"/readyz", &ready))

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, closed)
	require.True(t, consumer.closed)
}

func TestRunIntakeJournal_StorageError(t *testing.T) {
	f := journalFactories{
		newStorage: func(ctx context.Context, cfg *config.Config) (journalRepository, func(), error) {
			return nil, nil, context.DeadlineExceeded
		},
	}
	err := RunIntakeJournal(context.Background(), &config.Config{}, journalOpts{}, f)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
