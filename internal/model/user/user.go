package user

// RoleAdmin is the only role allowed to delete or edit other users.
const RoleAdmin = "admin"

// User mirrors a row of the upstream user directory.
type User struct {
	Username string `json:"username"`
	Gender   string `json:"gender"`
	Age      any    `json:"age"`
	Role     string `json:"role"`
	Unit     string `json:"unit"`
}

// CurrentUser is the identity attached to a page session. It gates UI actions
// only; it carries no proof and the upstream must authorize on its own.
type CurrentUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the acting user may use privileged actions.
func (c *CurrentUser) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Update carries the editable fields of a user; nil fields are left unchanged.
type Update struct {
	Username *string `json:"username,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Age      *int    `json:"age,omitempty"`
	Role     *string `json:"role,omitempty"`
	Unit     *string `json:"unit,omitempty"`
}
