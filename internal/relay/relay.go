// Package relay consumes published command results and hands them to a
// local notifier, once per event.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	kafkax "github.com/ariefcatur/go-delivery-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"time"
)

type Deduper interface {
	// FirstSeen marks key and reports whether it was unmarked before.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

type Service struct {
	Dedup    Deduper
	Notifier notify.Notifier
	Name     string
	Log      *zap.Logger
}

// HandleNotification is installed as the consumer handler. Redelivered
// events are dropped by event id.
func (s *Service) HandleNotification(ctx context.Context, m kafkago.Message) error {
	var env notify.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// a poison message would block the partition; log and commit it
		s.Log.Error("undecodable notification", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case notify.EventCommandSucceeded, notify.EventCommandFailed, notify.EventRedirectRequested:
	default:
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.FirstSeen(ctx, fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID))
		if err != nil {
			return fmt.Errorf("dedup %s: %w", env.EventID, err)
		}
		if !first {
			return nil
		}
	}

	r, err := kafkax.UnwrapPayload[notify.Result](env.Payload)
	if err != nil {
		s.Log.Error("undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	s.Notifier.Notify(ctx, r)
	return nil
}

// RedisDedup remembers event ids for TTL.
type RedisDedup struct {
	RDB *redis.Client
	TTL time.Duration
}

func (d *RedisDedup) FirstSeen(ctx context.Context, key string) (bool, error) {
	ttl := redisx.TTLDedup
	if d.TTL > 0 {
		ttl = d.TTL
	}
	return d.RDB.SetNX(ctx, key, "1", ttl).Result()
}
