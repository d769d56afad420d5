// Package session resolves the signed-in identity and its role at startup
// and holds the working data set the UI renders.
package session

import (
	"github.com/ariefcatur/go-delivery-ledger.git/internal/orders"
	"sync"
)

type State string

const (
	StateStart                 State = "Start"
	StateResolvingRole         State = "ResolvingRole"
	StateResolvingAdminData    State = "ResolvingAdminData"
	StateResolvingCustomerData State = "ResolvingCustomerData"
	StateReady                 State = "Ready"
	StateFailed                State = "Failed"
)

// Snapshot is a copy of the session and its cached collections.
type Snapshot struct {
	Identity string           `json:"identity,omitempty"`
	SignedIn bool             `json:"signed_in"`
	Role     orders.Role      `json:"role"`
	Loading  bool             `json:"loading"`
	State    State            `json:"state"`
	Profile  *orders.Customer `json:"profile,omitempty"`
	Orders   []orders.Order   `json:"orders"`
	Epoch    uint64           `json:"-"`
}

// Store is the one mutable session object. It is passed explicitly to the
// resolver and the command handlers.
type Store struct {
	mu sync.RWMutex
	s  Snapshot

	// Observe, when set, receives every snapshot after a mutation.
	Observe func(Snapshot)
}

func NewStore() *Store { return &Store{s: Snapshot{State: StateStart}} }

func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.copy()
}

func (st *Store) Epoch() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Epoch
}

func (s Snapshot) copy() Snapshot {
	out := s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Orders = append(make([]orders.Order, 0, len(s.Orders)), s.Orders...)
	return out
}

func (st *Store) mutate(fn func(s *Snapshot) bool) bool {
	st.mu.Lock()
	ok := fn(&st.s)
	snap := st.s.copy()
	st.mu.Unlock()
	if ok && st.Observe != nil {
		st.Observe(snap)
	}
	return ok
}

// begin starts a resolution cycle: it clears the working set, raises
// Loading and moves to a new epoch.
func (st *Store) begin(identity string, signedIn bool) uint64 {
	var epoch uint64
	st.mutate(func(s *Snapshot) bool {
		s.Epoch++
		epoch = s.Epoch
		*s = Snapshot{Identity: identity, SignedIn: signedIn, Loading: true, State: StateStart, Epoch: epoch}
		return true
	})
	return epoch
}

func (st *Store) setState(epoch uint64, state State) {
	st.mutate(func(s *Snapshot) bool {
		if s.Epoch != epoch {
			return false
		}
		s.State = state
		return true
	})
}

// finish ends a resolution cycle and drops Loading.
func (st *Store) finish(epoch uint64, state State, role orders.Role, profile *orders.Customer, list []orders.Order) {
	st.mutate(func(s *Snapshot) bool {
		if s.Epoch != epoch {
			return false
		}
		s.State, s.Role, s.Loading = state, role, false
		s.Profile, s.Orders = profile, append(make([]orders.Order, 0, len(list)), list...)
		return true
	})
}

// PutOrder replaces the cached order with the same id, or appends it. It is
// a no-op when epoch is stale.
func (st *Store) PutOrder(epoch uint64, o orders.Order) bool {
	return st.mutate(func(s *Snapshot) bool {
		if s.Epoch != epoch {
			return false
		}
		for i := range s.Orders {
			if s.Orders[i].ID == o.ID {
				s.Orders[i] = o
				return true
			}
		}
		s.Orders = append(s.Orders, o)
		return true
	})
}

// SetProfile replaces the cached profile. It is a no-op when epoch is stale.
func (st *Store) SetProfile(epoch uint64, c orders.Customer) bool {
	return st.mutate(func(s *Snapshot) bool {
		if s.Epoch != epoch {
			return false
		}
		s.Profile = &c
		return true
	})
}

// Order looks up a cached order.
func (st *Store) Order(id string) (orders.Order, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, o := range st.s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return orders.Order{}, false
}
