package session

import (
	"context"
	"strings"
)

// User is the authenticated caller as resolved by the upstream authorizer.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Authenticated() bool {
	return strings.TrimSpace(u.ID) != ""
}

func (u User) IsAdmin() bool {
	return strings.EqualFold(u.Role, "admin")
}

type ctxKey struct{}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// FromContext returns the caller, or the zero User when none is attached.
func FromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(ctxKey{}).(User)
	if !ok || !user.Authenticated() {
		return User{}, false
	}
	return user, true
}
