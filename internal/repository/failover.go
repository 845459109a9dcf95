package repository

import (
	"context"
	"sync/atomic"
	"time"

	"frontdesk/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLockRepository uses the primary lock store and switches to the fallback while the primary errors.
type FailoverLockRepository struct {
	primary   domain.LockRepository
	fallback  domain.LockRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLockRepository(primary, fallback domain.LockRepository, logger *zerolog.Logger) *FailoverLockRepository {
	return &FailoverLockRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLockRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary lock repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverLockRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverLockRepository) AcquireRoomLock(ctx context.Context, roomID int64, token string, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() {
		ok, err := r.primary.AcquireRoomLock(ctx, roomID, token, ttl)
		if err == nil {
			return ok, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		// Try to recover after a minute
		ok, err := r.primary.AcquireRoomLock(ctx, roomID, token, ttl)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary lock repository recovered")
			return ok, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.AcquireRoomLock(ctx, roomID, token, ttl)
}

// ReleaseRoomLock releases on both stores; a store that does not hold the token ignores the call.
func (r *FailoverLockRepository) ReleaseRoomLock(ctx context.Context, roomID int64, token string) error {
	if !r.isDown.Load() {
		if err := r.primary.ReleaseRoomLock(ctx, roomID, token); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.ReleaseRoomLock(ctx, roomID, token)
}
