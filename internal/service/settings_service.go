package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/progression"
)

// SettingsService owns the global settings singleton
type SettingsService struct {
	repo  SettingsRepository
	cache SettingsCache
	now   func() time.Time

	// gen counts updates; a Get only fills the cache if no update ran since its read
	mu  sync.Mutex
	gen uint64
}

// NewSettingsService creates a settings service. cache may be nil.
func NewSettingsService(repo SettingsRepository, cache SettingsCache) *SettingsService {
	return &SettingsService{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// Get returns the current settings, seeding the defaults on first read
func (s *SettingsService) Get(ctx context.Context) (*models.GlobalSettings, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("settings cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	gen := s.generation()
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, apperrors.ErrNotFound) {
		settings = models.DefaultSettings()
		settings.UpdatedAt = s.now().UTC()
		if err := s.repo.Save(ctx, settings); err != nil {
			return nil, apperrors.NewDatabaseError("seed settings", err)
		}
		logging.FromContext(ctx).Info("seeded default settings")
	} else if err != nil {
		return nil, apperrors.NewDatabaseError("get settings", err)
	}

	s.fill(ctx, settings, gen)
	return settings, nil
}

// Update validates and replaces the settings as a whole
func (s *SettingsService) Update(ctx context.Context, in *models.GlobalSettings) (*models.GlobalSettings, error) {
	if in == nil {
		return nil, apperrors.NewInvalidSettingsError("settings", "missing")
	}
	next := in.Clone()
	if err := normalizeSettings(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, apperrors.NewDatabaseError("save settings", err)
	}
	s.invalidate(ctx)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"channels":          len(next.Channels),
		"levels":            len(next.Levels),
		"minWithdrawalUsdt": next.MinWithdrawalUSDT,
		"minWithdrawalTrx":  next.MinWithdrawalTRX,
	}).Info("settings updated")
	return next, nil
}

func (s *SettingsService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// fill caches settings read at generation gen, unless an update has run since
func (s *SettingsService) fill(ctx context.Context, settings *models.GlobalSettings, gen uint64) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if err := s.cache.Set(ctx, settings); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("settings cache write failed")
	}
}

func (s *SettingsService) invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("settings cache invalidation failed")
	}
}

// normalizeSettings assigns ids to new channels and checks every constraint
func normalizeSettings(st *models.GlobalSettings) error {
	seen := make(map[string]bool, len(st.Channels))
	for i := range st.Channels {
		ch := &st.Channels[i]
		ch.ID = strings.TrimSpace(ch.ID)
		ch.Name = strings.TrimSpace(ch.Name)
		ch.URL = strings.TrimSpace(ch.URL)

		if ch.Name == "" {
			return apperrors.NewInvalidSettingsError(fmt.Sprintf("channels[%d].name", i), "must not be empty")
		}
		if ch.URL == "" {
			return apperrors.NewInvalidSettingsError(fmt.Sprintf("channels[%d].url", i), "must not be empty")
		}
		if ch.ID == "" {
			ch.ID = uuid.New().String()
		}
		if seen[ch.ID] {
			return apperrors.NewInvalidSettingsError(fmt.Sprintf("channels[%d].id", i), "duplicate channel id "+ch.ID)
		}
		seen[ch.ID] = true
	}

	if err := progression.Validate(st.Levels); err != nil {
		var verr *progression.ValidationError
		if errors.As(err, &verr) {
			return apperrors.NewInvalidSettingsError(fmt.Sprintf("levels[%d]", verr.Index), verr.Reason)
		}
		return apperrors.NewInvalidSettingsError("levels", err.Error())
	}

	if st.MinWithdrawalUSDT < 0 {
		return apperrors.NewInvalidSettingsError("minWithdrawalUsdt", "must not be negative")
	}
	if st.MinWithdrawalTRX < 0 {
		return apperrors.NewInvalidSettingsError("minWithdrawalTrx", "must not be negative")
	}
	return nil
}
