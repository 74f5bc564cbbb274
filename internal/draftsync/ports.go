package draftsync

import (
	"context"
)

// LocalStore is durable storage on the form's own device. It is the
// durability backstop: every save writes here first.
type LocalStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RemoteStore is the signed-in user's draft on the server.
//
// Fetch returns the user's most recent draft, which may belong to another
// form. It returns an error wrapping sentinel.ErrNotFound when the user has no
// draft. Transport failures wrap sentinel.ErrUnavailable or
// sentinel.ErrTimeout and count towards the breaker.
type RemoteStore interface {
	Fetch(ctx context.Context) (*Record, error)
	Push(ctx context.Context, rec Record) error
	Discard(ctx context.Context, formID string) error
}

// User is the signed-in user as seen by the form.
type User struct {
	ID    string
	Email string
}

// Identity reports the current user, or nil when nobody is signed in.
// Remote operations are attempted only with a user.
type Identity interface {
	CurrentUser() *User
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func() *User

func (f IdentityFunc) CurrentUser() *User {
	return f()
}

// Anonymous is an Identity with nobody signed in.
var Anonymous Identity = IdentityFunc(func() *User { return nil })
