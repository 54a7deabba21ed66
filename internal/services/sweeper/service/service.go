// Package service implements the expiry sweep: a periodic reconciliation of
// timed mutes against the wall clock. All state lives in the durable rows, so
// a restart simply resumes at the next tick.
package service

import (
	"context"
	"time"

	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
	"warden/internal/services/guardian/domain"
)

// Config for the sweeper
type Config struct {
	// Interval between sweeps; defaults to 30s
	Interval time.Duration
}

// Service runs the expiry sweep loop
type Service struct {
	mutes   domain.MutePort
	storage domain.Storage
	cfg     Config
	log     logger.Logger
	now     func() time.Time
}

// New constructs the sweeper
func New(mutes domain.MutePort, storage domain.Storage, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Service{
		mutes:   mutes,
		storage: storage,
		cfg:     cfg,
		log:     *logger.Named("sweeper"),
		now:     time.Now,
	}
}

// Run sweeps until the context is cancelled
func (s *Service) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the timed mutes. Rows are processed independently;
// one failure never stops the rest of the sweep.
func (s *Service) Sweep(ctx context.Context) {
	rows, err := s.storage.ListTimed(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list timed mutes failed")
		return
	}

	now := s.now()
	for _, rec := range rows {
		if rec.ExpiresAt == nil || rec.ExpiresAt.After(now) {
			continue
		}
		s.expire(ctx, rec)
	}
}

func (s *Service) expire(ctx context.Context, rec domain.MuteRecord) {
	_, err := s.mutes.Unmute(ctx, rec.GuildID, rec.UserID, domain.TriggerExpiry)
	if err == nil {
		return
	}

	// A member who left, or who lost the muted role out of band, leaves a
	// row nothing will ever resolve again. Drop it instead of re-sweeping
	// it forever.
	if perr.IsCode(err, perr.ErrorCodeNotFound) || perr.IsCode(err, perr.ErrorCodeAlreadyInState) {
		s.log.Info().
			Str("guild", rec.GuildID).
			Str("user", rec.UserID).
			Str("code", perr.CodeOf(err).String()).
			Msg("dropping stale mute row")
		if derr := s.storage.DeleteMute(ctx, rec.GuildID, rec.UserID); derr != nil {
			s.log.Error().Err(derr).Str("user", rec.UserID).Msg("stale mute row delete failed")
		}
		return
	}

	// Transient failure: leave the row; the next tick retries
	s.log.Warn().Err(err).
		Str("guild", rec.GuildID).
		Str("user", rec.UserID).
		Msg("expiry unmute failed; will retry next sweep")
}
