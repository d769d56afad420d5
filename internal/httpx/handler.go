package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/contract"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/delivery"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/journal"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type Resolver interface {
	Resolve(ctx context.Context, nav session.NavContext) (session.Snapshot, error)
}

type Commands interface {
	SaveProfile(ctx context.Context, in delivery.ProfileInput) (orders.Customer, error)
	CreateOrder(ctx context.Context, in delivery.OrderInput) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error)
	SubmitFeedback(ctx context.Context, orderID string, rating orders.Feedback, comment string) (orders.Order, error)
}

type Wallet interface {
	CurrentIdentity() string
	BeginSignIn(ctx context.Context) (string, error)
	CompleteSignIn(ctx context.Context, accountID string) error
	SignOut(ctx context.Context) error
}

type JournalLister interface {
	List(ctx context.Context, actor string, limit int) ([]journal.Entry, error)
}

// Handler is the local API the UI drives. Every write carries the user's
// answer to the confirmation prompt in "confirmed".
type Handler struct {
	Resolver Resolver
	Store    *session.Store
	Commands Commands
	Wallet   Wallet
	Journal  JournalLister
	Log      *zap.Logger
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/session", h.getSession)
	r.Post("/session/resolve", h.resolve)
	r.Get("/login", h.login)
	r.Get("/callback", h.callback)
	r.Post("/logout", h.logout)

	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/feedback", h.submitFeedback)
	r.Put("/profile", h.saveProfile)

	r.Get("/quote", h.quote)
	r.Get("/journal", h.listJournal)
}

type CreateOrderReq struct {
	delivery.OrderInput
	Confirmed bool `json:"confirmed"`
}

type UpdateStatusReq struct {
	Status    orders.Status `json:"status"`
	Confirmed bool          `json:"confirmed"`
}

type FeedbackReq struct {
	Rating    orders.Feedback `json:"rating"`
	Comment   string          `json:"comment"`
	Confirmed bool            `json:"confirmed"`
}

type ProfileReq struct {
	delivery.ProfileInput
	Confirmed bool `json:"confirmed"`
}

type RedirectResp struct {
	RedirectURL string `json:"redirect_url"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindAmountFormat, apperr.KindInvalidWeight:
		return http.StatusBadRequest
	case apperr.KindNotAuthorized, apperr.KindNotSignedIn, apperr.KindSignatureRequired:
		return http.StatusForbidden
	case apperr.KindTerminalState, apperr.KindInvalidTransition, apperr.KindNotYetDelivered,
		apperr.KindBusy, apperr.KindCancelled:
		return http.StatusConflict
	case apperr.KindRemoteRejected:
		return http.StatusBadGateway
	case apperr.KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeResult answers a command: the value on success, the wallet URL when
// a signature is pending, the failure result otherwise.
func (h *Handler) writeResult(w http.ResponseWriter, op string, v any, err error) {
	var redirect *contract.RedirectRequired
	switch {
	case errors.As(err, &redirect):
		writeJSON(w, http.StatusAccepted, RedirectResp{RedirectURL: redirect.URL})
	case err != nil:
		writeJSON(w, statusFor(err), notify.Failure(op, "", "", err))
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Snapshot())
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	h.runResolve(w, r, session.NavContext{})
}

func (h *Handler) runResolve(w http.ResponseWriter, r *http.Request, nav session.NavContext) {
	snap, err := h.Resolver.Resolve(r.Context(), nav)
	var redirect *contract.RedirectRequired
	switch {
	case errors.As(err, &redirect):
		writeJSON(w, http.StatusAccepted, RedirectResp{RedirectURL: redirect.URL})
		return
	case err != nil:
		writeJSON(w, statusFor(err), notify.Failure("resolveSession", snap.Identity, "", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	u, err := h.Wallet.BeginSignIn(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RedirectResp{RedirectURL: u})
}

// callback is where the wallet sends the browser back, after sign-in and
// after every signature request.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	nav := session.ParseNav(r.URL.Query())
	if nav.AccountID != "" && nav.AccountID != h.Wallet.CurrentIdentity() {
		if err := h.Wallet.CompleteSignIn(r.Context(), nav.AccountID); err != nil {
			h.Log.Error("complete sign-in", zap.String("account", nav.AccountID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed"})
			return
		}
	}
	h.runResolve(w, r, nav)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Wallet.SignOut(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.runResolve(w, r, session.NavContext{})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Snapshot().Orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if !decode(w, r, &req) {
		return
	}
	ctx := notify.WithConfirmation(r.Context(), req.Confirmed)
	o, err := h.Commands.CreateOrder(ctx, req.OrderInput)
	h.writeResult(w, delivery.OpCreateOrder, o, err)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if !decode(w, r, &req) {
		return
	}
	ctx := notify.WithConfirmation(r.Context(), req.Confirmed)
	o, err := h.Commands.UpdateOrderStatus(ctx, chi.URLParam(r, "id"), req.Status)
	h.writeResult(w, delivery.OpUpdateOrderStatus, o, err)
}

func (h *Handler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackReq
	if !decode(w, r, &req) {
		return
	}
	ctx := notify.WithConfirmation(r.Context(), req.Confirmed)
	o, err := h.Commands.SubmitFeedback(ctx, chi.URLParam(r, "id"), req.Rating, req.Comment)
	h.writeResult(w, delivery.OpSubmitFeedback, o, err)
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileReq
	if !decode(w, r, &req) {
		return
	}
	ctx := notify.WithConfirmation(r.Context(), req.Confirmed)
	c, err := h.Commands.SaveProfile(ctx, req.ProfileInput)
	h.writeResult(w, "saveProfile", c, err)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	grams, err := strconv.Atoi(r.URL.Query().Get("weight"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "weight must be an integer number of grams"})
		return
	}
	q, err := delivery.Quote(grams)
	h.writeResult(w, "quote", q, err)
}

// listJournal shows an admin every entry and anyone else their own.
func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	snap := h.Store.Snapshot()
	if !snap.SignedIn {
		h.writeResult(w, "listJournal", nil, apperr.New(apperr.KindNotSignedIn, "listJournal"))
		return
	}
	actor := snap.Identity
	if snap.Role == orders.RoleAdmin {
		actor = r.URL.Query().Get("actor")
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Journal.List(r.Context(), actor, limit)
	if err != nil {
		h.Log.Error("list journal", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
