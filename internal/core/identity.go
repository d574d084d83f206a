package core

// Role is the caller's privilege level. Roles are totally ordered by
// rank; an unknown role ranks below every known one.
type Role string

const (
	RoleUser       Role = "user"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
	RoleSystem     Role = "system"
)

var roleRanks = map[Role]int{
	RoleUser:       1,
	RoleManager:    2,
	RoleAdmin:      3,
	RoleSuperadmin: 4,
	RoleSystem:     5,
}

// ParseRole maps a raw string to a Role. Unrecognized values fall back
// to RoleUser so a malformed upstream claim never grants elevation.
func ParseRole(s string) Role {
	r := Role(s)
	if _, ok := roleRanks[r]; ok {
		return r
	}
	return RoleUser
}

// Rank returns the role's position in the privilege order, 0 if unknown.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// TokenSource is the only token provenance the engine accepts.
const TokenSource = "tenant-authorization"

// AccessToken is the authorization artifact the caller-side
// authenticator constructs after tenant authorization passes. The
// engine treats it as opaque beyond these fields.
type AccessToken struct {
	Verified  bool   `json:"verified"`
	Source    string `json:"source"`
	UserRole  Role   `json:"user_role"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

// Valid reports whether the token authorizes dispatch at all.
func (t *AccessToken) Valid() bool {
	return t != nil && t.Verified && t.Source == TokenSource
}

// TenantRecord identifies the authorized tenant. Outbound calls and
// audit rows always carry ID (a uuid), never the slug.
type TenantRecord struct {
	ID   string `json:"id"`
	Slug string `json:"tenant_slug"`
}
