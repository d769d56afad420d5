// Package inflight keeps at most one submission per (actor, operation,
// target) in flight at a time.
package inflight

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Guard rejects a submission while an identical one is running. The local
// set covers one process; when RDB is set a Redis lease covers every
// process sharing it.
type Guard struct {
	RDB *redis.Client
	TTL time.Duration
	Log *zap.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{RDB: rdb, TTL: ttl, Log: log, held: map[string]struct{}{}}
}

func Key(actor, op, target string) string {
	return fmt.Sprintf(redisx.KeyInflight, actor, op, target)
}

// Acquire claims the key. The returned release must be called once the
// submission has finished, whatever its outcome.
func (g *Guard) Acquire(ctx context.Context, actor, op, target string) (func(), error) {
	key := Key(actor, op, target)

	g.mu.Lock()
	if g.held == nil {
		g.held = map[string]struct{}{}
	}
	if _, busy := g.held[key]; busy {
		g.mu.Unlock()
		return nil, apperr.New(apperr.KindBusy, op)
	}
	g.held[key] = struct{}{}
	g.mu.Unlock()

	local := func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}
	if g.RDB == nil {
		return local, nil
	}

	ttl := g.TTL
	if ttl <= 0 {
		ttl = redisx.TTLInflight
	}
	token := uuid.NewString()
	ok, err := redisx.Acquire(ctx, g.RDB, key, token, ttl)
	if err != nil {
		local()
		return nil, apperr.Unavailable(op, err)
	}
	if !ok {
		local()
		return nil, apperr.New(apperr.KindBusy, op)
	}
	return func() {
		// release on a fresh context so a cancelled command still frees the lease
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisx.Release(rctx, g.RDB, key, token); err != nil {
			g.Log.Warn("release inflight lease", zap.String("key", key), zap.Error(err))
		}
		local()
	}, nil
}

// Held reports whether key is claimed in this process.
func (g *Guard) Held(actor, op, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[Key(actor, op, target)]
	return ok
}
