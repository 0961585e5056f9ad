package station

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/TrackIntake/config"
	"github.com/BearBump/TrackIntake/internal/broker/kafka"
	"github.com/BearBump/TrackIntake/internal/broker/messages"
	"github.com/BearBump/TrackIntake/internal/cache/rediscache"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer/fake"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer/gcsupload"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer/httpupload"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer/sftpupload"
	"github.com/BearBump/TrackIntake/internal/localsave"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/BearBump/TrackIntake/internal/records"
	"github.com/BearBump/TrackIntake/internal/services/export"
	"github.com/BearBump/TrackIntake/internal/services/intake"
	"github.com/BearBump/TrackIntake/internal/storage/sessionstore"
	"github.com/pkg/errors"
)

const (
	DefaultStationID      = "4202"
	DefaultDownloadDir    = "downloads"
	DefaultTransferMode   = "fake"
	DefaultCooldownMs     = 2000
	DefaultDismissSeconds = 3
)

// Station собирает приём целиком: сессия, сканирование, выгрузка.
type Station struct {
	Store    *records.Store
	Intake   *intake.Service
	Export   *export.Orchestrator
	Session  *sessionstore.Store
	Uploader transfer.Uploader
	// SFTP-клиент для relay-эндпоинта; nil, если transfer.mode не sftp
	SFTP *sftpupload.Client

	cache   *rediscache.RedisCache
	closers []func() error
}

// Build wires a station from config. Redis and Kafka are optional: without redis the
// session is not persisted and the cooldown is in-process, without kafka no events are sent.
func Build(ctx context.Context, cfg *config.Config) (*Station, error) {
	st := &Station{}

	stationID := cfg.Intake.StationID
	if stationID == "" {
		stationID = DefaultStationID
	}
	loc := time.UTC
	if cfg.Intake.Timezone != "" {
		l, err := time.LoadLocation(cfg.Intake.Timezone)
		if err != nil {
			return nil, errors.Wrap(err, "load timezone")
		}
		loc = l
	}
	cooldownMs := DefaultCooldownMs
	if cfg.Intake.RescanCooldownMs != nil {
		cooldownMs = *cfg.Intake.RescanCooldownMs
	}
	dismiss := time.Duration(cfg.Intake.NoticeDismissSeconds) * time.Second
	if dismiss <= 0 {
		dismiss = DefaultDismissSeconds * time.Second
	}
	downloadDir := cfg.Intake.DownloadDir
	if downloadDir == "" {
		downloadDir = DefaultDownloadDir
	}
	topic := cfg.Kafka.ExportCompletedTopicName
	if topic == "" {
		topic = messages.TopicExportCompleted
	}

	var rl intake.RateLimiter
	var persister records.Persister
	if cfg.Redis.Host != "" {
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rc := rediscache.New(redisAddr)
		st.cache = rc
		st.closers = append(st.closers, rc.Close)

		st.Session = sessionstore.New(rc, cfg.Intake.SessionKey).
			WithTTL(time.Duration(cfg.Intake.SessionTTLSeconds) * time.Second)
		persister = st.Session
		rl = rc.Cooldowns()
	}

	recs, err := st.loadSession(ctx)
	if err != nil {
		// битая или недоступная сессия не мешает начать заново
		slog.Warn("restore session failed, starting empty", "error", err.Error())
	}
	st.Store = records.NewStore(persister, recs)

	factory := records.NewFactory(stationID).
		WithDropLocation(cfg.Intake.IncludeDropLocation).
		WithLocation(loc)
	st.Intake = intake.New(st.Store, factory, rl).
		WithCooldown(time.Duration(cooldownMs) * time.Millisecond)

	uploader, err := st.newUploader(ctx, cfg.Transfer)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.Uploader = uploader

	var producer export.Producer
	if cfg.Kafka.Host != "" {
		p := kafka.NewProducer([]string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)})
		st.closers = append(st.closers, p.Close)
		producer = p
	}

	st.Export = export.New(st.Store, uploader, localsave.NewDirSaver(downloadDir), producer, stationID).
		WithSettings(cfg.Intake.UniformPartnerRequired(), dismiss, loc).
		WithTopic(topic)

	slog.Info("station ready",
		"station", stationID,
		"restored_records", st.Store.Len(),
		"transfer_mode", transferMode(cfg.Transfer),
		"timezone", loc.String(),
	)
	return st, nil
}

func (s *Station) loadSession(ctx context.Context) ([]models.TrackingRecord, error) {
	if s.Session == nil {
		return nil, nil
	}
	return s.Session.Load(ctx)
}

func transferMode(c config.TransferConfig) string {
	if c.Mode == "" {
		return DefaultTransferMode
	}
	return c.Mode
}

func (s *Station) newUploader(ctx context.Context, c config.TransferConfig) (transfer.Uploader, error) {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second

	switch mode := transferMode(c); mode {
	case "sftp":
		if c.Host == "" {
			return nil, errors.New("transfer.host (or SFTP_HOST) is required for sftp mode")
		}
		s.SFTP = sftpupload.New(sftpupload.Config{
			Host:      c.Host,
			Port:      c.Port,
			Username:  c.Username,
			Password:  c.Password,
			RemoteDir: c.RemoteDir,
			HostKey:   c.HostKey,
			Timeout:   timeout,
		})
		return s.SFTP, nil
	case "http":
		return httpupload.New(c.BaseURL, timeout), nil
	case "gcs":
		g, err := gcsupload.New(ctx, c.Bucket, c.Prefix)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, g.Close)
		return g, nil
	case "fake":
		return fake.New(), nil
	default:
		return nil, errors.Errorf("unknown transfer mode %q", mode)
	}
}

// Ping checks the session backend. A station without redis is always ready.
func (s *Station) Ping(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Station) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
}
