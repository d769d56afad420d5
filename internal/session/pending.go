package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"net/url"
	"strings"
	"time"
)

// Pending describes a command whose signature was handed to the wallet. It
// is saved before the redirect and resolved on the next startup.
type Pending struct {
	Op        string    `json:"op"`
	Method    string    `json:"method"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PendingStore interface {
	Save(ctx context.Context, p Pending) error
	Load(ctx context.Context, actor string) (*Pending, error)
	Clear(ctx context.Context, actor string) error
}

// NavContext is what the wallet hands back when it returns to the client.
type NavContext struct {
	AccountID    string
	TxHashes     []string
	ErrorCode    string
	ErrorMessage string
}

// ParseNav reads the wallet callback query parameters.
func ParseNav(q url.Values) NavContext {
	nav := NavContext{
		AccountID:    q.Get("account_id"),
		ErrorCode:    q.Get("errorCode"),
		ErrorMessage: q.Get("errorMessage"),
	}
	for _, h := range strings.Split(q.Get("transactionHashes"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			nav.TxHashes = append(nav.TxHashes, h)
		}
	}
	return nav
}

// Returned reports whether the navigation came back from a signing request.
func (n NavContext) Returned() bool { return len(n.TxHashes) > 0 || n.ErrorCode != "" }

// LastHash is the transaction carrying the command's result.
func (n NavContext) LastHash() string {
	if len(n.TxHashes) == 0 {
		return ""
	}
	return n.TxHashes[len(n.TxHashes)-1]
}

// RedisPending keeps one descriptor per actor; a new redirect replaces the
// previous one.
type RedisPending struct {
	RDB *redis.Client
	TTL time.Duration
}

func (s *RedisPending) Save(ctx context.Context, p Pending) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = redisx.TTLPending
	}
	return s.RDB.Set(ctx, fmt.Sprintf(redisx.KeyPending, p.Actor), b, ttl).Err()
}

func (s *RedisPending) Load(ctx context.Context, actor string) (*Pending, error) {
	b, err := s.RDB.Get(ctx, fmt.Sprintf(redisx.KeyPending, actor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return &p, nil
}

func (s *RedisPending) Clear(ctx context.Context, actor string) error {
	return s.RDB.Del(ctx, fmt.Sprintf(redisx.KeyPending, actor)).Err()
}
