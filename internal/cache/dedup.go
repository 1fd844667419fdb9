package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DedupTTL keeps the last accepted transition for a person long enough to
// cover a working day; overnight expiry resets everyone to "no state".
const DedupTTL = 18 * time.Hour

// DedupGuard suppresses repeated transitions per person: an event whose label
// equals the last accepted one is a duplicate. Only two labels ever
// participate (entry/exit); pass-through labels bypass the guard entirely.
type DedupGuard struct {
	backend Backend
	log     *zap.Logger
	ttl     time.Duration
}

func NewDedupGuard(backend Backend, log *zap.Logger) *DedupGuard {
	return &DedupGuard{backend: backend, log: log, ttl: DedupTTL}
}

// ShouldAccept reports whether the transition is new state for the person.
// When it is, the stored label is overwritten; a rejected duplicate leaves
// the store untouched. Backend failures fail open: an event is never dropped
// because the dedup layer is down.
func (g *DedupGuard) ShouldAccept(ctx context.Context, personID, label string) bool {
	key := "state:" + personID

	last, err := g.backend.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrMiss) {
		g.log.Warn("dedup state read failed, accepting event", zap.String("person", personID), zap.Error(err))
		return true
	}
	if err == nil && last == label {
		return false
	}

	if err := g.backend.Set(ctx, key, label, g.ttl); err != nil {
		g.log.Warn("dedup state write failed", zap.String("person", personID), zap.Error(err))
	}
	return true
}
