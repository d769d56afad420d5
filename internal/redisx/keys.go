package redisx

import "time"

const (
	// Single-flight lease per command: inflight:{actor}:{op}:{target} -> lease token
	KeyInflight = "inflight:%s:%s:%s"

	// Continuation saved before a wallet redirect: pending:{actor} -> JSON descriptor
	KeyPending = "pending:%s"

	// Signed-in account of the local wallet session
	KeyWalletSession = "wallet:session"

	// Dedup of relayed notifications: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLInflight = 2 * time.Minute
	TTLPending  = 30 * time.Minute
	TTLDedup    = 48 * time.Hour
)
