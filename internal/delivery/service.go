// Package delivery holds the command handlers: profile, order creation,
// status updates and feedback. Each one validates locally, asks for
// confirmation, submits through the gateway and patches the session store.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/contract"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/inflight"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/journal"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/money"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/session"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Operation names used for single-flight keys, notifications and the
// journal.
const (
	OpCreateCustomer    = "createCustomer"
	OpUpdateCustomer    = "updateCustomer"
	OpCreateOrder       = "createOrder"
	OpUpdateOrderStatus = "updateOrderStatus"
	OpSubmitFeedback    = "submitFeedback"
)

type Gateway interface {
	CreateCustomer(ctx context.Context, p contract.Profile) (orders.Customer, error)
	UpdateCustomer(ctx context.Context, p contract.Profile) (orders.Customer, error)
	CreateOrder(ctx context.Context, in contract.NewOrder) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) (orders.Order, error)
	SubmitFeedback(ctx context.Context, orderID string, rating orders.Feedback, comment string) (orders.Order, error)
	GetCustomerByAccountID(ctx context.Context, accountID string) (orders.Customer, error)
	GetOrderByID(ctx context.Context, orderID string) (orders.Order, error)
	AwaitResult(ctx context.Context, method string, h wallet.TxHandle) ([]byte, error)
}

type Journal interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, bool, error)
}

type Service struct {
	Gateway   Gateway
	Identity  session.Identity
	Store     *session.Store
	Guard     *inflight.Guard
	Pending   session.PendingStore
	Journal   Journal
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Validate  *validator.Validate
	Log       *zap.Logger

	// PendingHold is how long a command waiting on the wallet blocks
	// resubmission of the same command. Defaults to redisx.TTLInflight.
	PendingHold time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewValidator reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ProfileInput is the editable part of a customer profile.
type ProfileInput struct {
	Name                  string `json:"name"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	FullAddress           string `json:"full_address"`
	Landmark              string `json:"landmark"`
	GooglePlusCodeAddress string `json:"google_plus_code_address"`
}

type OrderInput struct {
	Description   string `json:"description" validate:"required"`
	WeightInGrams int    `json:"weight_in_grams" validate:"min=1000,max=10000"`
}

type command struct {
	op      string
	method  string
	target  string
	confirm string
	success string
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// SaveProfile creates the caller's profile when none is stored yet and
// updates it otherwise.
func (s *Service) SaveProfile(ctx context.Context, in ProfileInput) (orders.Customer, error) {
	actor, snap := s.Identity.CurrentIdentity(), s.Store.Snapshot()
	c := command{op: OpUpdateCustomer, method: contract.MethodUpdateCustomer, confirm: "Save profile changes?", success: "Profile updated"}
	if snap.Profile.Missing() {
		c = command{op: OpCreateCustomer, method: contract.MethodCreateCustomer, confirm: "Create your profile?", success: "Profile created"}
	}
	if err := s.requireRole(c.op, snap, orders.RoleCustomer); err != nil {
		return orders.Customer{}, s.reject(ctx, c, actor, err)
	}
	p := contract.Profile{
		AccountID:             actor,
		Name:                  strings.TrimSpace(in.Name),
		Phone:                 strings.TrimSpace(in.Phone),
		Email:                 strings.TrimSpace(in.Email),
		FullAddress:           strings.TrimSpace(in.FullAddress),
		Landmark:              strings.TrimSpace(in.Landmark),
		GooglePlusCodeAddress: strings.TrimSpace(in.GooglePlusCodeAddress),
	}
	if err := s.validate(c.op, p); err != nil {
		return orders.Customer{}, s.reject(ctx, c, actor, err)
	}

	return run(ctx, s, c, actor, func(ctx context.Context) (orders.Customer, error) {
		var (
			saved orders.Customer
			err   error
		)
		if c.op == OpCreateCustomer {
			saved, err = s.Gateway.CreateCustomer(ctx, p)
		} else {
			saved, err = s.Gateway.UpdateCustomer(ctx, p)
		}
		if err != nil || !saved.Missing() {
			return saved, err
		}
		// the contract does not always echo the profile back
		fresh, rerr := s.Gateway.GetCustomerByAccountID(ctx, actor)
		if rerr != nil {
			s.log().Warn("re-read profile", zap.String("account", actor), zap.Error(rerr))
			return profileFrom(p), nil
		}
		return fresh, nil
	}, func(epoch uint64, saved orders.Customer) bool {
		return s.Store.SetProfile(epoch, saved)
	})
}

// CreateOrder prices the draft by weight, generates the order id and
// submits it with the price plus one unit as deposit.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (orders.Order, error) {
	actor, snap := s.Identity.CurrentIdentity(), s.Store.Snapshot()
	c := command{op: OpCreateOrder, method: contract.MethodCreateOrder, confirm: "Place this order?", success: "Order created"}
	if err := s.requireRole(c.op, snap, orders.RoleCustomer); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	switch {
	case snap.Profile == nil || strings.TrimSpace(snap.Profile.FullAddress) == "":
		return orders.Order{}, s.reject(ctx, c, actor, apperr.Field(c.op, "full_address"))
	case strings.TrimSpace(snap.Profile.Phone) == "":
		return orders.Order{}, s.reject(ctx, c, actor, apperr.Field(c.op, "phone"))
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate(c.op, in); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	price, err := orders.PriceForWeight(in.WeightInGrams)
	if err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}

	draft := contract.NewOrder{
		ID:            uuid.NewString(),
		CustomerID:    actor,
		Description:   in.Description,
		WeightInGrams: in.WeightInGrams,
		Price:         price,
	}
	return run(ctx, s, c, actor, func(ctx context.Context) (orders.Order, error) {
		o, err := s.Gateway.CreateOrder(ctx, draft)
		if err != nil {
			return o, err
		}
		if o.ID == "" {
			o = orders.Order{
				ID:            draft.ID,
				CustomerID:    draft.CustomerID,
				Description:   draft.Description,
				WeightInGrams: draft.WeightInGrams,
				PaymentType:   orders.PaymentPrepaid,
				Status:        orders.StatusConfirmed,
			}
		}
		if o.PriceInSmallestUnit == "" {
			o.PriceInSmallestUnit, _ = money.ToSmallestUnit(strconv.Itoa(price))
		}
		return o, nil
	}, func(epoch uint64, o orders.Order) bool {
		return s.Store.PutOrder(epoch, o)
	})
}

// UpdateOrderStatus moves an order along its lifecycle. Only an admin may
// do this, and only along the allowed transitions.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error) {
	actor, snap := s.Identity.CurrentIdentity(), s.Store.Snapshot()
	c := command{op: OpUpdateOrderStatus, method: contract.MethodUpdateOrderStatus, target: orderID,
		confirm: "Change order status to " + string(to) + "?", success: "Order status updated"}
	if err := s.requireSignedIn(c.op); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	if !to.Valid() {
		return orders.Order{}, s.reject(ctx, c, actor, apperr.Field(c.op, "order_status"))
	}
	current, err := s.order(ctx, c.op, orderID)
	if err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	if err := orders.CanTransition(current.Status, to, snap.Role); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}

	return run(ctx, s, c, actor, func(ctx context.Context) (orders.Order, error) {
		o, err := s.Gateway.UpdateOrderStatus(ctx, orderID, to)
		if err != nil {
			return o, err
		}
		if o.ID == "" {
			o = current
			o.Status = to
		}
		return o, nil
	}, func(epoch uint64, o orders.Order) bool {
		return s.Store.PutOrder(epoch, o)
	})
}

// SubmitFeedback attaches a rating to one of the caller's delivered
// orders. Earlier feedback is overwritten.
func (s *Service) SubmitFeedback(ctx context.Context, orderID string, rating orders.Feedback, comment string) (orders.Order, error) {
	actor, snap := s.Identity.CurrentIdentity(), s.Store.Snapshot()
	c := command{op: OpSubmitFeedback, method: contract.MethodSubmitFeedback, target: orderID,
		confirm: "Submit feedback?", success: "Feedback submitted"}
	if err := s.requireSignedIn(c.op); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	if !rating.Valid() {
		return orders.Order{}, s.reject(ctx, c, actor, apperr.Field(c.op, "customer_feedback"))
	}
	current, err := s.order(ctx, c.op, orderID)
	if err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	if err := orders.CanSubmitFeedback(current.Status, snap.Role); err != nil {
		return orders.Order{}, s.reject(ctx, c, actor, err)
	}
	if current.CustomerID != actor {
		return orders.Order{}, s.reject(ctx, c, actor, apperr.New(apperr.KindNotAuthorized, c.op))
	}

	comment = strings.TrimSpace(comment)
	return run(ctx, s, c, actor, func(ctx context.Context) (orders.Order, error) {
		o, err := s.Gateway.SubmitFeedback(ctx, orderID, rating, comment)
		if err != nil {
			return o, err
		}
		if o.ID == "" {
			o = current
			o.CustomerFeedback, o.CustomerFeedbackComment = rating, comment
		}
		return o, nil
	}, func(epoch uint64, o orders.Order) bool {
		return s.Store.PutOrder(epoch, o)
	})
}

// Resume settles the command whose signature the wallet just returned
// from. The resolution that follows refreshes the cached data.
func (s *Service) Resume(ctx context.Context, nav session.NavContext) error {
	actor := s.Identity.CurrentIdentity()
	if s.Pending == nil || actor == "" {
		return nil
	}
	p, err := s.Pending.Load(ctx, actor)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	log := s.log().With(zap.String("op", p.Op), zap.String("account", actor))
	defer func() {
		if err := s.Pending.Clear(context.WithoutCancel(ctx), actor); err != nil {
			log.Warn("clear pending command", zap.Error(err))
		}
	}()
	c := command{op: p.Op, method: p.Method, target: p.Target}

	if nav.ErrorCode != "" {
		reason := nav.ErrorMessage
		if reason == "" {
			reason = nav.ErrorCode
		}
		err := apperr.Rejected(p.Method, reason)
		s.record(ctx, c, actor, "", err)
		s.notify(ctx, notify.Failure(p.Op, actor, p.Target, err))
		return nil
	}
	hash := nav.LastHash()
	if hash == "" {
		return nil
	}
	value, err := s.Gateway.AwaitResult(ctx, p.Method, wallet.TxHandle{Hash: hash, Signer: actor})
	s.record(ctx, c, actor, hash, err)
	if err != nil {
		s.notify(ctx, notify.Failure(p.Op, actor, p.Target, err))
		return nil
	}
	log.Info("pending command settled", zap.String("tx", hash))
	s.notify(ctx, notify.Success(p.Op, actor, p.Target, successMessage(p.Op), rawValue(value)))
	return nil
}

// Cancel stops the in-flight command with the given single-flight key.
func (s *Service) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.running[key]
	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every in-flight command. Their results are discarded.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.running {
		cancel()
	}
}

// run is the shared command path: confirmation, single-flight lease,
// cancellable submission, journal, notification and the epoch-checked
// store patch.
func run[T any](ctx context.Context, s *Service, c command, actor string, call func(context.Context) (T, error), apply func(epoch uint64, v T) bool) (T, error) {
	var zero T
	if s.Confirmer != nil && !s.Confirmer.Confirm(ctx, c.confirm) {
		return zero, s.reject(ctx, c, actor, apperr.New(apperr.KindCancelled, c.op))
	}
	if s.Guard != nil {
		release, err := s.Guard.Acquire(ctx, actor, c.op, c.target)
		if err != nil {
			return zero, s.reject(ctx, c, actor, err)
		}
		defer release()
	}
	if err := s.awaitingWallet(ctx, c, actor); err != nil {
		return zero, s.reject(ctx, c, actor, err)
	}

	epoch := s.Store.Epoch()
	key := inflight.Key(actor, c.op, c.target)
	cctx, cancel := context.WithCancel(ctx)
	s.track(key, cancel)
	defer s.untrack(key, cancel)

	start := time.Now()
	v, err := call(cctx)
	log := s.log().With(zap.String("op", c.op), zap.String("account", actor), zap.String("target", c.target), zap.Duration("took", time.Since(start)))

	var redirect *contract.RedirectRequired
	switch {
	case errors.As(err, &redirect):
		if s.Pending != nil {
			perr := s.Pending.Save(ctx, session.Pending{Op: c.op, Method: c.method, Actor: actor, Target: c.target, CreatedAt: time.Now().UTC()})
			if perr != nil {
				log.Error("save pending command", zap.Error(perr))
				return zero, s.reject(ctx, c, actor, apperr.Unavailable(c.op, perr))
			}
		}
		s.record(ctx, c, actor, "", err)
		s.notify(ctx, notify.Redirect(c.op, actor, c.target, redirect.URL))
		return zero, err
	case err != nil:
		log.Warn("command failed", zap.Error(err))
		s.record(ctx, c, actor, "", err)
		s.notify(ctx, notify.Failure(c.op, actor, c.target, err))
		return zero, err
	}

	s.record(ctx, c, actor, "", nil)
	if cctx.Err() != nil {
		log.Info("command superseded, result not applied")
	} else if !apply(epoch, v) {
		log.Info("session changed, result not applied", zap.Uint64("epoch", epoch))
	}
	s.notify(ctx, notify.Success(c.op, actor, c.target, c.success, v))
	return v, nil
}

// awaitingWallet refuses c while the same command is still waiting on
// approval in the wallet.
func (s *Service) awaitingWallet(ctx context.Context, c command, actor string) error {
	if s.Pending == nil {
		return nil
	}
	p, err := s.Pending.Load(ctx, actor)
	if err != nil {
		return apperr.Unavailable(c.op, err)
	}
	hold := s.PendingHold
	if hold <= 0 {
		hold = redisx.TTLInflight
	}
	if p != nil && p.Op == c.op && p.Target == c.target && time.Since(p.CreatedAt) < hold {
		return apperr.New(apperr.KindBusy, c.op)
	}
	return nil
}

func (s *Service) track(key string, cancel context.CancelFunc) {
	s.mu.Lock()
	if s.running == nil {
		s.running = map[string]context.CancelFunc{}
	}
	s.running[key] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(key string, cancel context.CancelFunc) {
	s.mu.Lock()
	delete(s.running, key)
	s.mu.Unlock()
	cancel()
}

func (s *Service) requireSignedIn(op string) error {
	if !s.Identity.IsSignedIn() {
		return apperr.New(apperr.KindNotSignedIn, op)
	}
	return nil
}

func (s *Service) requireRole(op string, snap session.Snapshot, role orders.Role) error {
	if err := s.requireSignedIn(op); err != nil {
		return err
	}
	if snap.Role != role {
		return apperr.New(apperr.KindNotAuthorized, op)
	}
	return nil
}

// order prefers the cached copy and falls back to the contract.
func (s *Service) order(ctx context.Context, op, id string) (orders.Order, error) {
	if strings.TrimSpace(id) == "" {
		return orders.Order{}, apperr.Field(op, "order_id")
	}
	if o, ok := s.Store.Order(id); ok {
		return o, nil
	}
	return s.Gateway.GetOrderByID(ctx, id)
}

func (s *Service) validate(op string, v any) error {
	val := s.Validate
	if val == nil {
		val = NewValidator()
	}
	err := val.Struct(v)
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		return apperr.Field(op, fields[0].Field())
	}
	if err != nil {
		return apperr.Field(op, "")
	}
	return nil
}

// reject reports a command that never reached the ledger.
func (s *Service) reject(ctx context.Context, c command, actor string, err error) error {
	s.log().Info("command rejected", zap.String("op", c.op), zap.String("account", actor), zap.Error(err))
	s.notify(ctx, notify.Failure(c.op, actor, c.target, err))
	return err
}

func (s *Service) notify(ctx context.Context, r notify.Result) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, r)
	}
}

func (s *Service) record(ctx context.Context, c command, actor, hash string, err error) {
	if s.Journal == nil {
		return
	}
	e := journal.Entry{Actor: actor, Op: c.op, Method: c.method, Target: c.target, TxHash: hash, Outcome: journal.OutcomeSucceeded}
	var redirect *contract.RedirectRequired
	switch {
	case errors.As(err, &redirect):
		e.Outcome = journal.OutcomeRedirect
	case err != nil:
		e.Outcome, e.Kind = journal.OutcomeFailed, string(apperr.KindOf(err))
		e.Message = err.Error()
	}
	if _, _, jerr := s.Journal.Record(context.WithoutCancel(ctx), e); jerr != nil {
		s.log().Warn("journal command", zap.String("op", c.op), zap.Error(jerr))
	}
}

func profileFrom(p contract.Profile) orders.Customer {
	return orders.Customer{
		ID:                    p.AccountID,
		Name:                  p.Name,
		Phone:                 p.Phone,
		Email:                 p.Email,
		FullAddress:           p.FullAddress,
		Landmark:              p.Landmark,
		GooglePlusCodeAddress: p.GooglePlusCodeAddress,
		Role:                  "Customer",
	}
}

// rawValue passes a decoded command result through to the notifier as
// JSON, or drops it when the contract returned nothing usable.
func rawValue(b []byte) any {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

func successMessage(op string) string {
	switch op {
	case OpCreateCustomer:
		return "Profile created"
	case OpUpdateCustomer:
		return "Profile updated"
	case OpCreateOrder:
		return "Order created"
	case OpUpdateOrderStatus:
		return "Order status updated"
	case OpSubmitFeedback:
		return "Feedback submitted"
	}
	return "Done"
}
