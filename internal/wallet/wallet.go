// Package wallet is the identity and signing collaborator. Calls that move
// funds are signed out of band: the user is sent to the wallet, which calls
// back with the transaction hash.
package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// FunctionCall is one contract method invocation to be signed.
type FunctionCall struct {
	ContractID string `json:"receiver_id"`
	Method     string `json:"method_name"`
	Args       any    `json:"args"`
	Gas        uint64 `json:"gas"`
	Deposit    string `json:"deposit"`
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash   string `json:"hash"`
	Signer string `json:"signer"`
}

// RedirectError is returned by SignAndSend when the user has to approve the
// transaction in the wallet. The call does not complete in this execution.
type RedirectError struct {
	URL string
}

func (e *RedirectError) Error() string { return "wallet approval required: " + e.URL }

var ErrNotSignedIn = errors.New("wallet: not signed in")

type Wallet interface {
	CurrentIdentity() string
	IsSignedIn() bool
	BeginSignIn(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
	SignAndSend(ctx context.Context, call FunctionCall) (TxHandle, error)
}

// Session is what survives a restart: the account and, when the wallet
// granted one at sign-in, the function-call access key.
type Session struct {
	AccountID string `json:"account_id"`
	SecretKey string `json:"secret_key,omitempty"`
}

type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// Redirect is a browser-wallet style Wallet: sign-in and signing are both
// redirects to WalletURL that return to CallbackURL. With RPC set, sign-in
// also asks for a function-call access key, and calls attaching no deposit
// are signed with it in-process instead of redirecting.
type Redirect struct {
	WalletURL   string
	ContractID  string
	CallbackURL string
	Sessions    SessionStore
	RPC         Broadcaster

	mu      sync.RWMutex
	account string
	key     KeyPair
	offered KeyPair

	// one local transaction at a time, so nonces do not collide
	signMu sync.Mutex
}

// Restore loads the persisted session, if any.
func (w *Redirect) Restore(ctx context.Context) error {
	sess, err := w.Sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore wallet session: %w", err)
	}
	var key KeyPair
	if sess.SecretKey != "" {
		if key, err = ParseKey(sess.SecretKey); err != nil {
			return fmt.Errorf("restore wallet session: %w", err)
		}
	}
	w.mu.Lock()
	w.account, w.key = sess.AccountID, key
	w.mu.Unlock()
	return nil
}

func (w *Redirect) CurrentIdentity() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.account
}

func (w *Redirect) IsSignedIn() bool { return w.CurrentIdentity() != "" }

// CanSignLocally reports whether zero-deposit calls skip the wallet.
func (w *Redirect) CanSignLocally() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.RPC != nil && w.account != "" && !w.key.IsZero()
}

func (w *Redirect) BeginSignIn(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("contract_id", w.ContractID)
	q.Set("success_url", w.CallbackURL)
	q.Set("failure_url", w.CallbackURL)
	if w.RPC != nil {
		key, err := GenerateKey()
		if err != nil {
			return "", err
		}
		w.mu.Lock()
		w.offered = key
		w.mu.Unlock()
		q.Set("public_key", key.PublicKey())
	}
	return w.WalletURL + "/login/?" + q.Encode(), nil
}

// CompleteSignIn records the account the wallet returned on the login
// callback, together with the access key offered by BeginSignIn.
func (w *Redirect) CompleteSignIn(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrNotSignedIn
	}
	w.mu.RLock()
	key := w.offered
	w.mu.RUnlock()
	sess := Session{AccountID: accountID}
	if !key.IsZero() {
		sess.SecretKey = key.Secret()
	}
	if err := w.Sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save wallet session: %w", err)
	}
	w.mu.Lock()
	w.account, w.key, w.offered = accountID, key, KeyPair{}
	w.mu.Unlock()
	return nil
}

func (w *Redirect) SignOut(ctx context.Context) error {
	w.mu.Lock()
	w.account, w.key = "", KeyPair{}
	w.mu.Unlock()
	return w.Sessions.Clear(ctx)
}

// SignAndSend signs zero-deposit calls with the session's access key when it
// has one. Every other call returns a *RedirectError carrying the wallet URL
// that approves it.
func (w *Redirect) SignAndSend(ctx context.Context, call FunctionCall) (TxHandle, error) {
	w.mu.RLock()
	signer, key := w.account, w.key
	w.mu.RUnlock()
	if signer == "" {
		return TxHandle{}, ErrNotSignedIn
	}
	if w.RPC != nil && !key.IsZero() && zeroDeposit(call) {
		w.signMu.Lock()
		defer w.signMu.Unlock()
		return signLocally(ctx, w.RPC, signer, key, call)
	}
	b, err := json.Marshal([]FunctionCall{call})
	if err != nil {
		return TxHandle{}, fmt.Errorf("encode transaction: %w", err)
	}
	q := url.Values{}
	q.Set("signer_id", signer)
	q.Set("transactions", base64.URLEncoding.EncodeToString(b))
	q.Set("callbackUrl", w.CallbackURL)
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return TxHandle{}, &RedirectError{URL: w.WalletURL + "/sign?" + q.Encode()}
}

// RedisSessions stores the signed-in session under a single key.
type RedisSessions struct {
	RDB *redis.Client
	Key string
}

func (s *RedisSessions) key() string {
	if s.Key != "" {
		return s.Key
	}
	return redisx.KeyWalletSession
}

// Load also accepts a bare account id, the format before access keys.
func (s *RedisSessions) Load(ctx context.Context) (Session, error) {
	b, err := s.RDB.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if json.Unmarshal(b, &sess) != nil {
		return Session{AccountID: string(b)}, nil
	}
	return sess, nil
}

func (s *RedisSessions) Save(ctx context.Context, sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode wallet session: %w", err)
	}
	return s.RDB.Set(ctx, s.key(), b, 0).Err()
}

func (s *RedisSessions) Clear(ctx context.Context) error {
	return s.RDB.Del(ctx, s.key()).Err()
}
