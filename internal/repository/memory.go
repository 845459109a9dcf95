package repository

import (
	"context"
	"sync"
	"time"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLockRepository keeps room locks in process memory. It only serializes callers of one process.
type MemoryLockRepository struct {
	mu    sync.Mutex
	locks map[int64]lockEntry
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{locks: make(map[int64]lockEntry)}
}

func (r *MemoryLockRepository) AcquireRoomLock(_ context.Context, roomID int64, token string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if entry, ok := r.locks[roomID]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	r.locks[roomID] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (r *MemoryLockRepository) ReleaseRoomLock(_ context.Context, roomID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.locks[roomID]; ok && entry.token == token {
		delete(r.locks, roomID)
	}
	return nil
}
