package auth

import (
	"context"
	"sync"
	"time"
)

// LocalRevoker keeps revoked token ids in process memory until they expire.
// Revocations are lost on restart and are not shared between replicas.
type LocalRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	lastGC  time.Time
	now     func() time.Time
}

func NewLocalRevoker() *LocalRevoker {
	return &LocalRevoker{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *LocalRevoker) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastGC) > time.Minute {
		for id, exp := range r.revoked {
			if !now.Before(exp) {
				delete(r.revoked, id)
			}
		}
		r.lastGC = now
	}
	if ttl <= 0 {
		return nil
	}
	r.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (r *LocalRevoker) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !r.now().Before(exp) {
		delete(r.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
