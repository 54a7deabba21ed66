// Package actor carries the identity of the member performing an operation,
// as resolved from the interaction payload. Pure data; capability decisions
// belong to the services.
package actor

// Actor is the acting member. Admin reflects the administrator permission
// bit and short-circuits role checks in every service.
type Actor struct {
	ID      string
	RoleIDs []string
	Admin   bool
}

// HasRole reports whether the actor holds the given role
func (a Actor) HasRole(roleID string) bool {
	for _, id := range a.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
