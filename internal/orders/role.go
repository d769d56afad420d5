package orders

// Role is resolved once per session. The zero value is RoleUnresolved.
type Role int

const (
	RoleUnresolved Role = iota
	RoleAdmin
	RoleCustomer
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleCustomer:
		return "Customer"
	}
	return "Unresolved"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
