package metadata

// UserContext represents the authenticated actor, set by auth middleware.
// ID is the username that owns drafts.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}

// Actor returns the username, or "" for a nil context.
func (u *UserContext) Actor() string {
	if u == nil {
		return ""
	}
	return u.ID
}
