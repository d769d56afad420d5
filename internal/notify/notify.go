// Package notify carries command outcomes to whoever displays them, and asks
// the user to confirm actions before they are submitted.
package notify

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/contract"
	"go.uber.org/zap"
	"sync"
)

// Result is a tagged outcome: OK with an optional Value, a pending wallet
// redirect, or a failure with its kind and a human-readable message.
type Result struct {
	Op          string      `json:"op"`
	Actor       string      `json:"actor,omitempty"`
	Target      string      `json:"target,omitempty"`
	OK          bool        `json:"ok"`
	Kind        apperr.Kind `json:"kind,omitempty"`
	Field       string      `json:"field,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Message     string      `json:"message"`
	RedirectURL string      `json:"redirect_url,omitempty"`
	Value       any         `json:"value,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, r Result)
}

type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

func Success(op, actor, target, message string, v any) Result {
	return Result{Op: op, Actor: actor, Target: target, OK: true, Message: message, Value: v}
}

func Redirect(op, actor, target, url string) Result {
	return Result{Op: op, Actor: actor, Target: target, OK: true, Message: "approve the transaction in your wallet", RedirectURL: url}
}

// Failure describes err. Errors outside the taxonomy are reported as
// RemoteRejected so every failure carries a kind.
func Failure(op, actor, target string, err error) Result {
	r := Result{Op: op, Actor: actor, Target: target}
	var (
		ae       *apperr.Error
		redirect *contract.RedirectRequired
	)
	if !errors.As(err, &ae) {
		ae = apperr.Rejected(op, err.Error())
	}
	r.Kind, r.Field, r.Reason = ae.Kind, ae.Field, ae.Reason
	r.Message = Message(ae)
	if errors.As(err, &redirect) {
		r.RedirectURL = redirect.URL
	}
	return r
}

// FromError builds the Result for a command error, recognising wallet
// redirects.
func FromError(op, actor, target string, err error) Result {
	var redirect *contract.RedirectRequired
	if errors.As(err, &redirect) {
		return Redirect(op, actor, target, redirect.URL)
	}
	return Failure(op, actor, target, err)
}

var messages = map[apperr.Kind]string{
	apperr.KindAmountFormat:       "The amount is not a valid non-negative number.",
	apperr.KindInvalidWeight:      "Total weight must be between 1 g and 10,000 g.",
	apperr.KindValidation:         "A required field is missing or invalid",
	apperr.KindNotAuthorized:      "You are not allowed to do this.",
	apperr.KindTerminalState:      "The order is already delivered or cancelled.",
	apperr.KindInvalidTransition:  "The order cannot move to that status.",
	apperr.KindNotYetDelivered:    "Order must be Delivered to submit feedback.",
	apperr.KindRemoteRejected:     "The contract rejected the request",
	apperr.KindNetworkUnavailable: "The ledger could not be reached. Try again later.",
	apperr.KindBusy:               "This request is already being processed.",
	apperr.KindCancelled:          "Action cancelled.",
	apperr.KindNotSignedIn:        "You must be logged in.",
	apperr.KindSignatureRequired:  "Approve the request in your wallet to continue.",
}

// Message renders e for display.
func Message(e *apperr.Error) string {
	m, ok := messages[e.Kind]
	if !ok {
		return e.Error()
	}
	switch {
	case e.Kind == apperr.KindValidation && e.Field != "":
		return m + ": " + e.Field + "."
	case e.Kind == apperr.KindRemoteRejected && e.Reason != "":
		return m + ": " + e.Reason
	case e.Kind == apperr.KindValidation, e.Kind == apperr.KindRemoteRejected:
		return m + "."
	}
	return m
}

// Log writes every result to a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, r Result) {
	fields := []zap.Field{zap.String("op", r.Op), zap.String("actor", r.Actor), zap.String("target", r.Target)}
	if r.OK {
		l.Logger.Info(r.Message, fields...)
		return
	}
	l.Logger.Warn(r.Message, append(fields, zap.String("kind", string(r.Kind)))...)
}

// Multi fans a result out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r Result) {
	for _, n := range m {
		n.Notify(ctx, r)
	}
}

// Recorder keeps results in memory.
type Recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *Recorder) Notify(_ context.Context, res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *Recorder) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

type confirmedKey struct{}

// WithConfirmation marks ctx as carrying the user's answer to a
// confirmation prompt.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmedKey{}, confirmed)
}

// ContextConfirmer answers with the value stored by WithConfirmation, and
// false when none was stored.
type ContextConfirmer struct{}

func (ContextConfirmer) Confirm(ctx context.Context, _ string) bool {
	v, _ := ctx.Value(confirmedKey{}).(bool)
	return v
}

// Always answers every prompt the same way.
type Always bool

func (a Always) Confirm(context.Context, string) bool { return bool(a) }
