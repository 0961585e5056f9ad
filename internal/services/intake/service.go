package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/TrackIntake/internal/barcode"
	"github.com/BearBump/TrackIntake/internal/models"
	"github.com/BearBump/TrackIntake/internal/records"
	"github.com/pkg/errors"
)

// ErrCooldown: тот же код отсканирован повторно слишком быстро.
var ErrCooldown = errors.New("Bitte warten Sie, bevor Sie denselben Barcode erneut scannen.")

const (
	DefaultCooldown  = 2 * time.Second
	SuccessMessage   = "Barcode erfolgreich gescannt"
	cooldownKeyspace = "scan:cooldown"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Service struct {
	store   *records.Store
	factory *records.Factory
	rl      RateLimiter

	cooldown time.Duration
	now      func() time.Time

	// fallback без redis: последний принятый код и время приёма
	mu         sync.Mutex
	lastCode   string
	lastAccept time.Time
}

// New creates the scan service. rl may be nil, then the cooldown is tracked in-process.
func New(store *records.Store, factory *records.Factory, rl RateLimiter) *Service {
	return &Service{
		store:    store,
		factory:  factory,
		rl:       rl,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
}

func (s *Service) WithCooldown(d time.Duration) *Service {
	if d >= 0 {
		s.cooldown = d
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Store() *records.Store { return s.store }

// Validate checks a code without touching the store.
func (s *Service) Validate(raw string) (models.ParsedBarcode, error) {
	return barcode.Validate(raw)
}

// Scan accepts one scanned code: validate, duplicate check, rescan cooldown, then append.
// On any error nothing is mutated.
func (s *Service) Scan(ctx context.Context, raw string) (models.TrackingRecord, error) {
	parsed, err := barcode.Validate(raw)
	if err != nil {
		return models.TrackingRecord{}, err
	}
	if s.store.Contains(parsed.Code) {
		return models.TrackingRecord{}, records.ErrDuplicate
	}
	if err := s.checkCooldown(ctx, parsed.Code); err != nil {
		return models.TrackingRecord{}, err
	}

	now := s.now()
	rec, err := s.store.Insert(ctx, parsed.Code, func(seq int) models.TrackingRecord {
		return s.factory.FromParsed(parsed, seq, now)
	})
	if err != nil {
		return models.TrackingRecord{}, err
	}

	s.mu.Lock()
	s.lastCode, s.lastAccept = parsed.Code, now
	s.mu.Unlock()

	slog.Info("scan accepted", "id", rec.ID, "partner", rec.DeliveryPartnerID, "station", rec.CapturedBy)
	return rec, nil
}

func (s *Service) checkCooldown(ctx context.Context, code string) error {
	if s.cooldown <= 0 {
		return nil
	}
	if s.rl != nil {
		ok, _, err := s.rl.Allow(ctx, s.cooldownKey(code), 1, s.cooldown)
		if err == nil {
			if !ok {
				return ErrCooldown
			}
			return nil
		}
		// redis недоступен: не блокируем сканирование, падаем в локальную проверку
		slog.Warn("cooldown limiter failed", "error", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if code == s.lastCode && s.now().Sub(s.lastAccept) < s.cooldown {
		return ErrCooldown
	}
	return nil
}

func (s *Service) cooldownKey(code string) string {
	return fmt.Sprintf("%s:%s:%s", cooldownKeyspace, s.factory.Station(), code)
}

// List returns one page of the current records.
func (s *Service) List(opts records.ListOptions) records.Page {
	return s.store.Query(opts)
}

// Remove deletes the selected records and returns how many remain.
func (s *Service) Remove(ctx context.Context, ids []string) (removed, remaining int) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	removed = s.store.Remove(ctx, clean...)
	return removed, s.store.Len()
}

// IsRejection reports whether err is an operator-facing scan rejection rather than an internal failure.
func IsRejection(err error) bool {
	var ve *barcode.ValidationError
	return errors.As(err, &ve) || errors.Is(err, records.ErrDuplicate) || errors.Is(err, ErrCooldown)
}
