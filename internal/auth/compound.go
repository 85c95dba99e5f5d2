package auth

import (
	"context"
	"net/http"
)

type CompoundAuthEngine struct {
	engines []AuthEngine
}

// NewCompoundAuthEngine creates a new CompoundAuthEngine with the given AuthEngines.
func NewCompoundAuthEngine(engines ...AuthEngine) *CompoundAuthEngine {
	return &CompoundAuthEngine{
		engines: engines,
	}
}

// AuthenticateRequest returns the User from the first engine that accepts
// the request, or nil if none does.
func (e *CompoundAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {

	for _, engine := range e.engines {
		if user, err := engine.AuthenticateRequest(ctx, r); user != nil && err == nil {
			return user, nil
		}
	}

	return nil, nil
}

// NewDefaultAuthEngine accepts the secret in the X-Auth-Password header or as
// a Basic Auth password.
func NewDefaultAuthEngine(secret string) *CompoundAuthEngine {
	return NewCompoundAuthEngine(
		NewSharedSecretEngine(secret),
		NewBasicAuthEngine(secret),
	)
}
