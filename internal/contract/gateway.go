// Package contract is the typed client-side facade over the delivery
// contract's callable methods.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/money"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/nearrpc"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"strconv"
	"time"
)

// Wire method names.
const (
	MethodCheckIsAdmin           = "check_is_admin"
	MethodCheckCustomerExists    = "check_customer_exists"
	MethodCheckOrderExists       = "check_order_exists"
	MethodGetCustomerByAccountID = "get_customer_by_account_id"
	MethodGetOrderByID           = "get_order_by_id"
	MethodGetOrdersByCustomerID  = "get_orders_by_customer_id"
	MethodGetOrderList           = "get_order_list"
	MethodCreateCustomer         = "create_customer"
	MethodUpdateCustomer         = "update_customer"
	MethodCreateOrder            = "create_order"
	MethodUpdateOrderStatus      = "update_order_status"
	MethodSubmitFeedback         = "submit_feedback"
)

// GasPerCall is attached to every state-changing call (30 TGas).
const GasPerCall uint64 = 30_000_000_000_000

// ReadMode selects how the four profile/order reads reach the contract.
type ReadMode string

const (
	// ReadView sends them as read-only queries.
	ReadView ReadMode = "view"
	// ReadCall sends them as signed calls awaiting finality, which is what
	// contracts checking the caller's identity on reads require.
	ReadCall ReadMode = "call"
)

type Viewer interface {
	CallFunction(ctx context.Context, contractID, method string, args any) ([]byte, error)
}

type TxWatcher interface {
	TxStatus(ctx context.Context, hash, sender string) (nearrpc.TxOutcome, error)
}

type Signer interface {
	SignAndSend(ctx context.Context, call wallet.FunctionCall) (wallet.TxHandle, error)
}

// RedirectRequired is returned by a command whose signature has to be
// approved out of band. The command resumes from the wallet callback.
type RedirectRequired struct {
	Method string
	URL    string
}

func (e *RedirectRequired) Error() string { return e.Method + ": redirect to wallet" }

// Unwrap gives the redirect its taxonomy kind.
func (e *RedirectRequired) Unwrap() error {
	return &apperr.Error{Kind: apperr.KindSignatureRequired, Op: e.Method}
}

type Gateway struct {
	ContractID   string
	View         Viewer
	Tx           TxWatcher
	Signer       Signer
	ReadMode     ReadMode
	PollInterval time.Duration
	Timeout      time.Duration
	Log          *zap.Logger

	queries singleflight.Group
}

type accountArgs struct {
	AccountID string `json:"account_id"`
}

type orderArgs struct {
	OrderID string `json:"order_id"`
}

type customerArgs struct {
	CustomerID string `json:"customer_id"`
}

// Profile carries the editable customer fields.
type Profile struct {
	AccountID             string `json:"account_id" validate:"required"`
	Name                  string `json:"name" validate:"required"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email" validate:"omitempty,email"`
	FullAddress           string `json:"full_address" validate:"required"`
	Landmark              string `json:"landmark"`
	GooglePlusCodeAddress string `json:"google_plus_code_address"`
}

// NewOrder is the client-side order draft. ID is generated by the caller;
// Price is the whole-unit tier price.
type NewOrder struct {
	ID            string
	CustomerID    string
	Description   string
	WeightInGrams int
	Price         int
}

type createOrderArgs struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer_id"`
	Description      string `json:"description"`
	WeightInGrams    int    `json:"weight_in_grams"`
	PriceInYoctoNear string `json:"price_in_yocto_near"`
}

type statusArgs struct {
	OrderID     string        `json:"order_id"`
	OrderStatus orders.Status `json:"order_status"`
}

type feedbackArgs struct {
	OrderID                 string          `json:"order_id"`
	CustomerFeedback        orders.Feedback `json:"customer_feedback"`
	CustomerFeedbackComment string          `json:"customer_feedback_comment"`
}

func (g *Gateway) log() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

// ---- queries ----

func (g *Gateway) CheckIsAdmin(ctx context.Context, accountID string) (bool, error) {
	var ok bool
	err := g.query(ctx, MethodCheckIsAdmin, accountArgs{AccountID: accountID}, &ok)
	return ok, err
}

func (g *Gateway) CheckCustomerExists(ctx context.Context, accountID string) (bool, error) {
	var ok bool
	err := g.query(ctx, MethodCheckCustomerExists, accountArgs{AccountID: accountID}, &ok)
	return ok, err
}

func (g *Gateway) CheckOrderExists(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := g.query(ctx, MethodCheckOrderExists, orderArgs{OrderID: orderID}, &ok)
	return ok, err
}

// ---- reads ----

func (g *Gateway) GetCustomerByAccountID(ctx context.Context, accountID string) (orders.Customer, error) {
	var c orders.Customer
	err := g.read(ctx, MethodGetCustomerByAccountID, accountArgs{AccountID: accountID}, &c)
	return c, err
}

func (g *Gateway) GetOrderByID(ctx context.Context, orderID string) (orders.Order, error) {
	var o orders.Order
	err := g.read(ctx, MethodGetOrderByID, orderArgs{OrderID: orderID}, &o)
	return o, err
}

func (g *Gateway) GetOrdersByCustomerID(ctx context.Context, customerID string) ([]orders.Order, error) {
	var list []orders.Order
	err := g.read(ctx, MethodGetOrdersByCustomerID, customerArgs{CustomerID: customerID}, &list)
	return list, err
}

func (g *Gateway) GetOrderList(ctx context.Context) ([]orders.Order, error) {
	var list []orders.Order
	err := g.read(ctx, MethodGetOrderList, struct{}{}, &list)
	return list, err
}

// ---- commands ----

func (g *Gateway) CreateCustomer(ctx context.Context, p Profile) (orders.Customer, error) {
	var c orders.Customer
	err := g.command(ctx, g.ProfileCall(MethodCreateCustomer, p), &c)
	return c, err
}

func (g *Gateway) UpdateCustomer(ctx context.Context, p Profile) (orders.Customer, error) {
	var c orders.Customer
	err := g.command(ctx, g.ProfileCall(MethodUpdateCustomer, p), &c)
	return c, err
}

func (g *Gateway) CreateOrder(ctx context.Context, in NewOrder) (orders.Order, error) {
	var o orders.Order
	call, err := g.OrderCall(in)
	if err != nil {
		return o, err
	}
	err = g.command(ctx, call, &o)
	return o, err
}

func (g *Gateway) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) (orders.Order, error) {
	var o orders.Order
	call := g.functionCall(MethodUpdateOrderStatus, statusArgs{OrderID: orderID, OrderStatus: status}, "0")
	err := g.command(ctx, call, &o)
	return o, err
}

func (g *Gateway) SubmitFeedback(ctx context.Context, orderID string, rating orders.Feedback, comment string) (orders.Order, error) {
	var o orders.Order
	args := feedbackArgs{OrderID: orderID, CustomerFeedback: rating, CustomerFeedbackComment: comment}
	err := g.command(ctx, g.functionCall(MethodSubmitFeedback, args, money.Units(1)), &o)
	return o, err
}

// ProfileCall builds create_customer/update_customer with the one-unit
// deposit.
func (g *Gateway) ProfileCall(method string, p Profile) wallet.FunctionCall {
	return g.functionCall(method, p, money.Units(1))
}

// OrderCall builds create_order. The deposit is the price plus one unit.
func (g *Gateway) OrderCall(in NewOrder) (wallet.FunctionCall, error) {
	if in.Price <= 0 {
		return wallet.FunctionCall{}, apperr.Field(MethodCreateOrder, "price")
	}
	price, err := money.ToSmallestUnit(strconv.Itoa(in.Price))
	if err != nil {
		return wallet.FunctionCall{}, err
	}
	args := createOrderArgs{
		ID:               in.ID,
		CustomerID:       in.CustomerID,
		Description:      in.Description,
		WeightInGrams:    in.WeightInGrams,
		PriceInYoctoNear: price,
	}
	return g.functionCall(MethodCreateOrder, args, money.Units(int64(orders.OrderDeposit(in.Price)))), nil
}

func (g *Gateway) functionCall(method string, args any, deposit string) wallet.FunctionCall {
	return wallet.FunctionCall{ContractID: g.ContractID, Method: method, Args: args, Gas: GasPerCall, Deposit: deposit}
}

// ---- protocol ----

func (g *Gateway) query(ctx context.Context, method string, args any, out any) error {
	key, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", method, err)
	}
	// identical in-flight queries share one round trip
	v, err, shared := g.queries.Do(method+string(key), func() (any, error) {
		return g.View.CallFunction(ctx, g.ContractID, method, args)
	})
	if err != nil {
		return classify(method, err)
	}
	if shared {
		g.log().Debug("query coalesced", zap.String("method", method))
	}
	if err := json.Unmarshal(v.([]byte), out); err != nil {
		return apperr.Rejected(method, "malformed result: "+err.Error())
	}
	return nil
}

func (g *Gateway) read(ctx context.Context, method string, args any, out any) error {
	if g.ReadMode == ReadCall {
		return g.command(ctx, g.functionCall(method, args, "0"), out)
	}
	return g.query(ctx, method, args, out)
}

// command runs submit, await and decode for one state-changing call. It is
// never retried here.
func (g *Gateway) command(ctx context.Context, call wallet.FunctionCall, out any) error {
	h, err := g.Submit(ctx, call)
	if err != nil {
		return err
	}
	return g.Result(ctx, call.Method, h, out)
}

// Submit hands call to the signer and returns the pending transaction. A
// *RedirectRequired error means the signature happens out of band.
func (g *Gateway) Submit(ctx context.Context, call wallet.FunctionCall) (wallet.TxHandle, error) {
	h, err := g.Signer.SignAndSend(ctx, call)
	if err != nil {
		var redirect *wallet.RedirectError
		if errors.As(err, &redirect) {
			return h, &RedirectRequired{Method: call.Method, URL: redirect.URL}
		}
		return h, classify(call.Method, err)
	}
	g.log().Info("transaction submitted", zap.String("method", call.Method), zap.String("tx", h.Hash))
	return h, nil
}

// Result awaits finality of h and decodes its return value into out (out may
// be nil).
func (g *Gateway) Result(ctx context.Context, method string, h wallet.TxHandle, out any) error {
	value, err := g.AwaitResult(ctx, method, h)
	if err != nil {
		return err
	}
	if out == nil || len(value) == 0 {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return apperr.Rejected(method, "malformed result: "+err.Error())
	}
	return nil
}

// AwaitResult polls the node until h is final. Status lookups are reads and
// are repeated until the ledger answers or the timeout passes.
func (g *Gateway) AwaitResult(ctx context.Context, method string, h wallet.TxHandle) ([]byte, error) {
	timeout, interval := g.Timeout, g.PollInterval
	if timeout <= 0 {
		timeout = time.Minute
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(interval)
	defer t.Stop()
	var lastErr error
	for {
		o, err := g.Tx.TxStatus(ctx, h.Hash, h.Signer)
		switch {
		case err == nil && o.Final && o.Failure != "":
			return nil, apperr.Rejected(method, o.Failure)
		case err == nil && o.Final:
			return o.SuccessValue, nil
		case err == nil, errors.Is(err, nearrpc.ErrUnknownTransaction), errors.Is(err, nearrpc.ErrTransport):
			lastErr = err
		default:
			return nil, classify(method, err)
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, classify(method, ctxOr(ctx, lastErr))
		case <-t.C:
		}
	}
}

// ctxOr prefers a caller cancellation over the last polling error.
func ctxOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return apperr.Unavailable("", err)
}

func classify(method string, err error) error {
	var (
		ae     *apperr.Error
		rpcErr *nearrpc.Error
	)
	switch {
	case errors.As(err, &ae):
		if ae.Op == "" {
			ae.Op = method
		}
		return ae
	case errors.Is(err, context.Canceled):
		return &apperr.Error{Kind: apperr.KindCancelled, Op: method, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nearrpc.ErrTransport),
		errors.Is(err, nearrpc.ErrUnknownTransaction):
		return apperr.Unavailable(method, err)
	case errors.Is(err, wallet.ErrNotSignedIn):
		return &apperr.Error{Kind: apperr.KindNotSignedIn, Op: method}
	case errors.As(err, &rpcErr):
		return apperr.Rejected(method, rpcErr.Error())
	default:
		return apperr.Rejected(method, err.Error())
	}
}
