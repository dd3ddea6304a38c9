package collab

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor is an opt-in extension to the lock protocol. The protocol itself
// never expires locks: a peer whose disconnect is never observed by the
// transport would otherwise hold its fields forever. With a TTL configured,
// the janitor periodically releases locks older than the TTL and notifies the
// room the same way the disconnect path does, with per-field unlock events
// followed by a consolidated snapshot. A zero TTL disables expiry entirely
// and preserves the protocol's native behavior.
type Janitor struct {
	service  *Service
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// JanitorConfig carries the dependencies and timing of a Janitor.
type JanitorConfig struct {
	Service *Service
	// TTL is the maximum age of a lock before the sweep releases it.
	TTL time.Duration
	// Interval is the time between sweeps. Defaults to one minute.
	Interval time.Duration
	Logger   *zap.Logger
}

// NewJanitor constructs a Janitor; it does nothing until Run is called.
func NewJanitor(cfg JanitorConfig) *Janitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		service:  cfg.Service,
		ttl:      cfg.TTL,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// It returns immediately when the TTL is zero.
func (j *Janitor) Run(ctx context.Context) {
	if j.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep releases every lock older than the TTL across all rooms.
func (j *Janitor) Sweep() {
	if j.ttl <= 0 {
		return
	}
	now := j.service.now()
	cutoff := j.service.clock().Add(-j.ttl).UnixMilli()

	for _, room := range j.service.registry.snapshot() {
		room.mu.Lock()
		if room.removed {
			room.mu.Unlock()
			continue
		}
		released := make(map[string]FieldLock)
		for fieldID, lock := range room.locks {
			if lock.At < cutoff {
				released[fieldID] = lock
				delete(room.locks, fieldID)
			}
		}
		if len(released) > 0 {
			for fieldID, lock := range released {
				room.broadcast(lockEvent{Type: EventTypeUnlock, Room: room.id, FieldID: fieldID, By: lock.Owner, At: now}, nil)
			}
			room.broadcast(locksEvent{Type: EventTypeLocks, Room: room.id, Locks: room.locksSnapshot()}, nil)
			j.logger.Info("released stale locks",
				zap.String("room", room.id),
				zap.Int("count", len(released)))
		}
		room.mu.Unlock()
	}
}
