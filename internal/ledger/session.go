package ledger

import (
	"context"
	"strings"
)

// Session is the capability a store needs to act for a user. Stores scope
// every row to Owner.
type Session struct {
	Owner string
}

func (s Session) Valid() bool {
	return strings.TrimSpace(s.Owner) != ""
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the session from ctx.
func SessionFrom(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || !s.Valid() {
		return Session{}, ErrNoSession
	}
	return s, nil
}
