package enums

// Role is the marketplace-wide role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var roles = []Role{RoleCustomer, RoleAdmin}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return member(roles, r) }

// ParseRole is case-insensitive.
func ParseRole(value string) (Role, error) {
	return lookup(roles, "role", value, true)
}
