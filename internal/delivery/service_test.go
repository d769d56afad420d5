package delivery

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/apperr"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/contract"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/inflight"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/journal"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/session"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sync"
	"testing"
	"time"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(ctx context.Context, p contract.Profile) (orders.Customer, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(orders.Customer), args.Error(1)
}

func (m *MockGateway) UpdateCustomer(ctx context.Context, p contract.Profile) (orders.Customer, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(orders.Customer), args.Error(1)
}

func (m *MockGateway) CreateOrder(ctx context.Context, in contract.NewOrder) (orders.Order, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockGateway) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) (orders.Order, error) {
	args := m.Called(ctx, orderID, status)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockGateway) SubmitFeedback(ctx context.Context, orderID string, rating orders.Feedback, comment string) (orders.Order, error) {
	args := m.Called(ctx, orderID, rating, comment)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockGateway) GetCustomerByAccountID(ctx context.Context, accountID string) (orders.Customer, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(orders.Customer), args.Error(1)
}

func (m *MockGateway) GetOrderByID(ctx context.Context, orderID string) (orders.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockGateway) AwaitResult(ctx context.Context, method string, h wallet.TxHandle) ([]byte, error) {
	args := m.Called(ctx, method, h)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// ledger answers the resolver's reads so tests start from a Ready session.
type ledger struct {
	admin   bool
	profile *orders.Customer
	orders  []orders.Order
}

func (l *ledger) CheckIsAdmin(context.Context, string) (bool, error) { return l.admin, nil }
func (l *ledger) CheckCustomerExists(context.Context, string) (bool, error) {
	return l.profile != nil, nil
}
func (l *ledger) GetOrderList(context.Context) ([]orders.Order, error) { return l.orders, nil }
func (l *ledger) GetCustomerByAccountID(context.Context, string) (orders.Customer, error) {
	return *l.profile, nil
}
func (l *ledger) GetOrdersByCustomerID(context.Context, string) ([]orders.Order, error) {
	return l.orders, nil
}

type identity string

func (i identity) CurrentIdentity() string { return string(i) }
func (i identity) IsSignedIn() bool        { return i != "" }

type memPending struct {
	mu sync.Mutex
	m  map[string]session.Pending
}

func (p *memPending) Save(_ context.Context, v session.Pending) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = map[string]session.Pending{}
	}
	p.m[v.Actor] = v
	return nil
}

func (p *memPending) Load(_ context.Context, actor string) (*session.Pending, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[actor]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *memPending) Clear(_ context.Context, actor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, actor)
	return nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) (journal.Entry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return e, false, nil
}

type fixture struct {
	svc      *Service
	gw       *MockGateway
	resolver *session.Resolver
	rec      *notify.Recorder
	pending  *memPending
	journal  *memJournal
}

var (
	alice = orders.Customer{ID: "alice", Name: "Alice", Role: "Customer", Phone: "+62 811", FullAddress: "Jl. Merdeka 1"}

	confirmedOrder = orders.Order{ID: "o1", CustomerID: "alice", Status: orders.StatusConfirmed}
	deliveredOrder = orders.Order{ID: "o2", CustomerID: "alice", Status: orders.StatusDelivered}
	bobsOrder      = orders.Order{ID: "o3", CustomerID: "bob", Status: orders.StatusDelivered}
)

func setup(t *testing.T, account string, l *ledger) *fixture {
	t.Helper()
	f := &fixture{gw: &MockGateway{}, rec: &notify.Recorder{}, pending: &memPending{}, journal: &memJournal{}}
	store := session.NewStore()
	f.svc = &Service{
		Gateway:   f.gw,
		Identity:  identity(account),
		Store:     store,
		Guard:     inflight.New(nil, 0, nil),
		Pending:   f.pending,
		Journal:   f.journal,
		Notifier:  f.rec,
		Confirmer: notify.Always(true),
		Validate:  NewValidator(),
		Log:       zap.NewNop(),
	}
	f.resolver = &session.Resolver{Gateway: l, Wallet: identity(account), Store: store, Commands: f.svc, Log: zap.NewNop()}
	_, err := f.resolver.Resolve(context.Background(), session.NavContext{})
	require.NoError(t, err)
	return f
}

func customer(t *testing.T, profile orders.Customer) *fixture {
	return setup(t, "alice", &ledger{profile: &profile, orders: []orders.Order{confirmedOrder, deliveredOrder, bobsOrder}})
}

func admin(t *testing.T) *fixture {
	return setup(t, "root", &ledger{admin: true, orders: []orders.Order{confirmedOrder, deliveredOrder}})
}

func (f *fixture) last() notify.Result {
	r := f.rec.Results()
	return r[len(r)-1]
}

func TestCreateOrder_PricesAndCaches(t *testing.T) {
	f := customer(t, alice)
	var sent contract.NewOrder
	f.gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(in contract.NewOrder) bool {
		sent = in
		return true
	})).Return(orders.Order{}, nil)

	o, err := f.svc.CreateOrder(context.Background(), OrderInput{Description: " books ", WeightInGrams: 2500})
	require.NoError(t, err)

	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice", sent.CustomerID)
	assert.Equal(t, "books", sent.Description)
	assert.Equal(t, 3, sent.Price)
	assert.Equal(t, sent.ID, o.ID)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, "3000000000000000000000000", o.PriceInSmallestUnit)

	cached, ok := f.svc.Store.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, o, cached)
	assert.True(t, f.last().OK)
	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, journal.OutcomeSucceeded, f.journal.entries[0].Outcome)
}

func TestCreateOrder_Rejections(t *testing.T) {
	noPhone := alice
	noPhone.Phone = ""

	tests := []struct {
		name    string
		fixture func(t *testing.T) *fixture
		in      OrderInput
		kind    apperr.Kind
		field   string
	}{
		{"phone required", func(t *testing.T) *fixture { return customer(t, noPhone) }, OrderInput{Description: "x", WeightInGrams: 2000}, apperr.KindValidation, "phone"},
		{"missing profile", func(t *testing.T) *fixture {
			return setup(t, "carol", &ledger{})
		}, OrderInput{Description: "x", WeightInGrams: 2000}, apperr.KindValidation, "full_address"},
		{"description required", func(t *testing.T) *fixture { return customer(t, alice) }, OrderInput{Description: "  ", WeightInGrams: 2000}, apperr.KindValidation, "description"},
		{"below form range", func(t *testing.T) *fixture { return customer(t, alice) }, OrderInput{Description: "x", WeightInGrams: 500}, apperr.KindValidation, "weight_in_grams"},
		{"above range", func(t *testing.T) *fixture { return customer(t, alice) }, OrderInput{Description: "x", WeightInGrams: 10001}, apperr.KindValidation, "weight_in_grams"},
		{"admin", admin, OrderInput{Description: "x", WeightInGrams: 2000}, apperr.KindNotAuthorized, ""},
		{"signed out", func(t *testing.T) *fixture { return setup(t, "", &ledger{}) }, OrderInput{Description: "x", WeightInGrams: 2000}, apperr.KindNotSignedIn, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.fixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			res := f.last()
			assert.False(t, res.OK)
			assert.Equal(t, tt.field, res.Field)
			f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
			assert.Empty(t, f.journal.entries)
		})
	}
}

func TestCommand_ConfirmationDeclined(t *testing.T) {
	f := customer(t, alice)
	f.svc.Confirmer = notify.Always(false)

	_, err := f.svc.CreateOrder(context.Background(), OrderInput{Description: "x", WeightInGrams: 2000})
	assert.True(t, apperr.Is(err, apperr.KindCancelled))
	assert.Equal(t, "Action cancelled.", f.last().Message)
	f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Run("admin moves order forward", func(t *testing.T) {
		f := admin(t)
		f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusInProgress).Return(orders.Order{}, nil)

		o, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusInProgress, o.Status)
		cached, _ := f.svc.Store.Order("o1")
		assert.Equal(t, orders.StatusInProgress, cached.Status)
	})

	t.Run("customer is refused before submission", func(t *testing.T) {
		f := customer(t, alice)
		_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusInProgress)
		assert.True(t, apperr.Is(err, apperr.KindNotAuthorized))
		f.gw.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("terminal order", func(t *testing.T) {
		f := admin(t)
		_, err := f.svc.UpdateOrderStatus(context.Background(), "o2", orders.StatusCancelled)
		assert.True(t, apperr.Is(err, apperr.KindTerminalState))
	})

	t.Run("unknown status", func(t *testing.T) {
		f := admin(t)
		_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.Status("Lost"))
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, "order_status", f.last().Field)
	})

	t.Run("uncached order is read from the contract", func(t *testing.T) {
		f := admin(t)
		f.gw.On("GetOrderByID", mock.Anything, "o9").Return(orders.Order{ID: "o9", Status: orders.StatusInProgress}, nil)
		f.gw.On("UpdateOrderStatus", mock.Anything, "o9", orders.StatusDelivered).Return(orders.Order{}, nil)

		o, err := f.svc.UpdateOrderStatus(context.Background(), "o9", orders.StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusDelivered, o.Status)
	})

	t.Run("remote rejection reaches the notifier", func(t *testing.T) {
		f := admin(t)
		f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusCancelled).
			Return(orders.Order{}, apperr.Rejected(contract.MethodUpdateOrderStatus, "Order does not exists."))

		_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
		assert.True(t, apperr.Is(err, apperr.KindRemoteRejected))
		assert.Equal(t, "Order does not exists.", f.last().Reason)
		cached, _ := f.svc.Store.Order("o1")
		assert.Equal(t, orders.StatusConfirmed, cached.Status)
		require.Len(t, f.journal.entries, 1)
		assert.Equal(t, journal.OutcomeFailed, f.journal.entries[0].Outcome)
	})
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("own delivered order", func(t *testing.T) {
		f := customer(t, alice)
		f.gw.On("SubmitFeedback", mock.Anything, "o2", orders.FeedbackGood, "fast").Return(orders.Order{}, nil)

		o, err := f.svc.SubmitFeedback(context.Background(), "o2", orders.FeedbackGood, " fast ")
		require.NoError(t, err)
		assert.Equal(t, orders.FeedbackGood, o.CustomerFeedback)
		assert.Equal(t, "fast", o.CustomerFeedbackComment)

		// resubmission overwrites
		f.gw.On("SubmitFeedback", mock.Anything, "o2", orders.FeedbackBad, "").Return(orders.Order{}, nil)
		o, err = f.svc.SubmitFeedback(context.Background(), "o2", orders.FeedbackBad, "")
		require.NoError(t, err)
		assert.Equal(t, orders.FeedbackBad, o.CustomerFeedback)
	})

	tests := []struct {
		name    string
		fixture func(t *testing.T) *fixture
		orderID string
		rating  orders.Feedback
		kind    apperr.Kind
	}{
		{"not yet delivered", func(t *testing.T) *fixture { return customer(t, alice) }, "o1", orders.FeedbackGood, apperr.KindNotYetDelivered},
		{"someone else's order", func(t *testing.T) *fixture { return customer(t, alice) }, "o3", orders.FeedbackGood, apperr.KindNotAuthorized},
		{"admin", admin, "o2", orders.FeedbackGood, apperr.KindNotAuthorized},
		{"bad rating", func(t *testing.T) *fixture { return customer(t, alice) }, "o2", orders.Feedback("Meh"), apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.fixture(t)
			_, err := f.svc.SubmitFeedback(context.Background(), tt.orderID, tt.rating, "")
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			f.gw.AssertNotCalled(t, "SubmitFeedback", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSaveProfile(t *testing.T) {
	t.Run("creates when missing", func(t *testing.T) {
		f := setup(t, "carol", &ledger{})
		want := orders.Customer{ID: "carol", Name: "Carol", Role: "Customer", FullAddress: "Jl. Sudirman 2"}
		f.gw.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(p contract.Profile) bool {
			return p.AccountID == "carol" && p.Name == "Carol"
		})).Return(orders.Customer{}, nil)
		f.gw.On("GetCustomerByAccountID", mock.Anything, "carol").Return(want, nil)

		got, err := f.svc.SaveProfile(context.Background(), ProfileInput{Name: "Carol", FullAddress: "Jl. Sudirman 2"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		snap := f.svc.Store.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.False(t, snap.Profile.Missing())
		assert.Equal(t, OpCreateCustomer, f.last().Op)
	})

	t.Run("updates when present", func(t *testing.T) {
		f := customer(t, alice)
		updated := alice
		updated.Landmark = "near the mosque"
		f.gw.On("UpdateCustomer", mock.Anything, mock.Anything).Return(updated, nil)

		got, err := f.svc.SaveProfile(context.Background(), ProfileInput{Name: "Alice", Phone: alice.Phone, FullAddress: alice.FullAddress, Landmark: "near the mosque"})
		require.NoError(t, err)
		assert.Equal(t, "near the mosque", got.Landmark)
		f.gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	tests := []struct {
		name  string
		in    ProfileInput
		field string
	}{
		{"name required", ProfileInput{FullAddress: "x"}, "name"},
		{"address required", ProfileInput{Name: "x"}, "full_address"},
		{"email checked when present", ProfileInput{Name: "x", FullAddress: "y", Email: "not-an-email"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, "carol", &ledger{})
			_, err := f.svc.SaveProfile(context.Background(), tt.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tt.field, f.last().Field)
		})
	}
}

func TestCommand_RedirectSavesPending(t *testing.T) {
	f := admin(t)
	f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusCancelled).
		Return(orders.Order{}, &contract.RedirectRequired{Method: contract.MethodUpdateOrderStatus, URL: "https://wallet/sign?x"})

	_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
	var redirect *contract.RedirectRequired
	require.True(t, errors.As(err, &redirect))

	p, _ := f.pending.Load(context.Background(), "root")
	require.NotNil(t, p)
	assert.Equal(t, OpUpdateOrderStatus, p.Op)
	assert.Equal(t, contract.MethodUpdateOrderStatus, p.Method)
	assert.Equal(t, "o1", p.Target)
	assert.Equal(t, "https://wallet/sign?x", f.last().RedirectURL)
	assert.Equal(t, journal.OutcomeRedirect, f.journal.entries[0].Outcome)
}

func TestCommand_AwaitingWalletIsBusy(t *testing.T) {
	f := admin(t)
	redirect := &contract.RedirectRequired{Method: contract.MethodUpdateOrderStatus, URL: "https://wallet/sign?x"}
	f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusCancelled).Return(orders.Order{}, redirect)

	_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
	require.ErrorAs(t, err, &redirect)
	first, _ := f.pending.Load(context.Background(), "root")
	require.NotNil(t, first)

	_, err = f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
	assert.True(t, apperr.Is(err, apperr.KindBusy))
	f.gw.AssertNumberOfCalls(t, "UpdateOrderStatus", 1)
	kept, _ := f.pending.Load(context.Background(), "root")
	assert.Equal(t, first.CreatedAt, kept.CreatedAt)

	// an abandoned approval stops blocking once the hold has passed
	f.svc.PendingHold = time.Millisecond
	time.Sleep(5 * time.Millisecond)
	_, err = f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
	require.ErrorAs(t, err, &redirect)
	f.gw.AssertNumberOfCalls(t, "UpdateOrderStatus", 2)
}

func TestResume(t *testing.T) {
	t.Run("awaits the returned transaction", func(t *testing.T) {
		f := admin(t)
		require.NoError(t, f.pending.Save(context.Background(), session.Pending{Op: OpUpdateOrderStatus, Method: contract.MethodUpdateOrderStatus, Actor: "root", Target: "o1"}))
		f.gw.On("AwaitResult", mock.Anything, contract.MethodUpdateOrderStatus, wallet.TxHandle{Hash: "h2", Signer: "root"}).Return([]byte(`{"id":"o1"}`), nil)

		nav := session.NavContext{TxHashes: []string{"h1", "h2"}}
		require.NoError(t, f.svc.Resume(context.Background(), nav))

		res := f.last()
		assert.True(t, res.OK)
		assert.Equal(t, "Order status updated", res.Message)
		p, _ := f.pending.Load(context.Background(), "root")
		assert.Nil(t, p)
		require.Len(t, f.journal.entries, 1)
		assert.Equal(t, "h2", f.journal.entries[0].TxHash)
	})

	t.Run("wallet error is a rejection", func(t *testing.T) {
		f := admin(t)
		require.NoError(t, f.pending.Save(context.Background(), session.Pending{Op: OpCreateOrder, Method: contract.MethodCreateOrder, Actor: "root"}))

		require.NoError(t, f.svc.Resume(context.Background(), session.NavContext{ErrorCode: "userRejected", ErrorMessage: "User rejected the transaction"}))
		res := f.last()
		assert.False(t, res.OK)
		assert.Equal(t, apperr.KindRemoteRejected, res.Kind)
		assert.Equal(t, "User rejected the transaction", res.Reason)
		f.gw.AssertNotCalled(t, "AwaitResult", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("nothing pending", func(t *testing.T) {
		f := admin(t)
		require.NoError(t, f.svc.Resume(context.Background(), session.NavContext{TxHashes: []string{"h"}}))
		assert.Empty(t, f.rec.Results())
	})

	t.Run("resolver resumes before loading", func(t *testing.T) {
		f := admin(t)
		require.NoError(t, f.pending.Save(context.Background(), session.Pending{Op: OpSubmitFeedback, Method: contract.MethodSubmitFeedback, Actor: "root", Target: "o2"}))
		f.gw.On("AwaitResult", mock.Anything, contract.MethodSubmitFeedback, mock.Anything).
			Return(nil, apperr.Rejected(contract.MethodSubmitFeedback, "Only customer can submit feedback."))

		snap, err := f.resolver.Resolve(context.Background(), session.NavContext{TxHashes: []string{"h"}})
		require.NoError(t, err)
		assert.Equal(t, session.StateReady, snap.State)
		assert.Equal(t, apperr.KindRemoteRejected, f.rec.Results()[0].Kind)
	})
}

func TestCommand_DuplicateIsBusy(t *testing.T) {
	f := admin(t)
	entered, release := make(chan struct{}), make(chan struct{})
	f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusInProgress).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(orders.Order{}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusInProgress)
		done <- err
	}()
	<-entered

	_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusInProgress)
	assert.True(t, apperr.Is(err, apperr.KindBusy))

	close(release)
	require.NoError(t, <-done)
	f.gw.AssertNumberOfCalls(t, "UpdateOrderStatus", 1)
}

func TestCommand_ResolutionDropsStaleResult(t *testing.T) {
	f := admin(t)
	var cancelled bool
	f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusInProgress).
		Run(func(args mock.Arguments) {
			// the session is re-resolved while the command is in flight
			_, err := f.resolver.Resolve(context.Background(), session.NavContext{})
			require.NoError(t, err)
			cancelled = args.Get(0).(context.Context).Err() != nil
		}).
		Return(orders.Order{ID: "o1", Status: orders.StatusInProgress}, nil)

	_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusInProgress)
	require.NoError(t, err)
	assert.True(t, cancelled)

	cached, _ := f.svc.Store.Order("o1")
	assert.Equal(t, orders.StatusConfirmed, cached.Status)
}

func TestCancel(t *testing.T) {
	f := admin(t)
	entered := make(chan struct{})
	f.gw.On("UpdateOrderStatus", mock.Anything, "o1", orders.StatusCancelled).
		Run(func(args mock.Arguments) {
			close(entered)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(orders.Order{}, apperr.New(apperr.KindCancelled, contract.MethodUpdateOrderStatus))

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.UpdateOrderStatus(context.Background(), "o1", orders.StatusCancelled)
		done <- err
	}()
	<-entered
	assert.True(t, f.svc.Cancel(inflight.Key("root", OpUpdateOrderStatus, "o1")))
	assert.True(t, apperr.Is(<-done, apperr.KindCancelled))
	assert.False(t, f.svc.Cancel(inflight.Key("root", OpUpdateOrderStatus, "o1")))
}

func TestQuote(t *testing.T) {
	q, err := Quote(7000)
	require.NoError(t, err)
	assert.Equal(t, 7, q.Price)
	assert.Equal(t, 8, q.Deposit)
	assert.Equal(t, "7000000000000000000000000", q.PriceInSmallestUnit)
	assert.Equal(t, "8000000000000000000000000", q.DepositInSmallestUnit)

	_, err = Quote(0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidWeight))
}
