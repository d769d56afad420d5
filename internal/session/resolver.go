package session

import (
	"context"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"go.uber.org/zap"
)

// Gateway is the part of the contract gateway the resolver reads through.
type Gateway interface {
	CheckIsAdmin(ctx context.Context, accountID string) (bool, error)
	CheckCustomerExists(ctx context.Context, accountID string) (bool, error)
	GetOrderList(ctx context.Context) ([]orders.Order, error)
	GetCustomerByAccountID(ctx context.Context, accountID string) (orders.Customer, error)
	GetOrdersByCustomerID(ctx context.Context, customerID string) ([]orders.Order, error)
}

type Identity interface {
	CurrentIdentity() string
	IsSignedIn() bool
}

// Continuation finishes commands interrupted by a wallet redirect and drops
// commands started under a previous session.
type Continuation interface {
	Resume(ctx context.Context, nav NavContext) error
	CancelAll()
}

type Resolver struct {
	Gateway  Gateway
	Wallet   Identity
	Store    *Store
	Commands Continuation
	Notifier notify.Notifier
	Log      *zap.Logger
}

// roleDecision is the typed output of the first stage.
type roleDecision struct {
	identity string
	role     orders.Role
}

type roleData struct {
	profile *orders.Customer
	orders  []orders.Order
}

// Resolve runs one resolution cycle. Loading goes up once at the start and
// down once at Ready or Failed. The stages run in sequence because the
// second depends on the role found by the first.
func (r *Resolver) Resolve(ctx context.Context, nav NavContext) (Snapshot, error) {
	identity, signedIn := r.Wallet.CurrentIdentity(), r.Wallet.IsSignedIn()
	if r.Commands != nil {
		r.Commands.CancelAll()
	}
	epoch := r.Store.begin(identity, signedIn)
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("account", identity), zap.Uint64("epoch", epoch))

	if signedIn && nav.Returned() && r.Commands != nil {
		if err := r.Commands.Resume(ctx, nav); err != nil {
			log.Warn("resume pending command", zap.Error(err))
			r.notify(ctx, notify.Failure("resumeCommand", identity, "", apperr.Unavailable("resumeCommand", err)))
		}
	}

	if !signedIn || identity == "" {
		r.Store.finish(epoch, StateReady, orders.RoleUnresolved, nil, nil)
		return r.Store.Snapshot(), nil
	}

	r.Store.setState(epoch, StateResolvingRole)
	decision, err := r.resolveRole(ctx, identity)
	if err != nil {
		return r.fail(ctx, epoch, log, "checkIsAdmin", identity, err)
	}

	var data roleData
	switch decision.role {
	case orders.RoleAdmin:
		r.Store.setState(epoch, StateResolvingAdminData)
		data, err = r.loadAdmin(ctx)
	default:
		r.Store.setState(epoch, StateResolvingCustomerData)
		data, err = r.loadCustomer(ctx, decision.identity)
	}
	if err != nil {
		return r.fail(ctx, epoch, log, "loadSession", identity, err)
	}

	r.Store.finish(epoch, StateReady, decision.role, data.profile, data.orders)
	log.Info("session ready", zap.Stringer("role", decision.role), zap.Int("orders", len(data.orders)))
	return r.Store.Snapshot(), nil
}

func (r *Resolver) resolveRole(ctx context.Context, identity string) (roleDecision, error) {
	admin, err := r.Gateway.CheckIsAdmin(ctx, identity)
	if err != nil {
		return roleDecision{}, err
	}
	if admin {
		return roleDecision{identity: identity, role: orders.RoleAdmin}, nil
	}
	return roleDecision{identity: identity, role: orders.RoleCustomer}, nil
}

func (r *Resolver) loadAdmin(ctx context.Context) (roleData, error) {
	list, err := r.Gateway.GetOrderList(ctx)
	if err != nil {
		return roleData{}, err
	}
	return roleData{orders: list}, nil
}

// loadCustomer reads the caller's profile and orders. An account without a
// stored profile gets a bare profile carrying only its id, which reads as
// Missing; the contract refuses both reads for such accounts.
func (r *Resolver) loadCustomer(ctx context.Context, identity string) (roleData, error) {
	exists, err := r.Gateway.CheckCustomerExists(ctx, identity)
	if err != nil {
		return roleData{}, err
	}
	if !exists {
		return roleData{profile: &orders.Customer{ID: identity}}, nil
	}
	profile, err := r.Gateway.GetCustomerByAccountID(ctx, identity)
	if err != nil {
		return roleData{}, err
	}
	list, err := r.Gateway.GetOrdersByCustomerID(ctx, identity)
	if err != nil {
		return roleData{}, err
	}
	return roleData{profile: &profile, orders: list}, nil
}

func (r *Resolver) fail(ctx context.Context, epoch uint64, log *zap.Logger, op, identity string, err error) (Snapshot, error) {
	r.Store.finish(epoch, StateFailed, orders.RoleUnresolved, nil, nil)
	log.Error("session resolution failed", zap.String("op", op), zap.Error(err))
	r.notify(ctx, notify.Failure(op, identity, "", err))
	return r.Store.Snapshot(), err
}

func (r *Resolver) notify(ctx context.Context, res notify.Result) {
	if r.Notifier != nil {
		r.Notifier.Notify(ctx, res)
	}
}
