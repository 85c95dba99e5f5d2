package auth

import (
	"context"
	"net/http"
)

// BasicAuthEngine accepts HTTP Basic credentials whose password is the shared
// secret, so scripts can use `curl -u :secret`. The user name is ignored.
type BasicAuthEngine struct {
	Secret string
}

// NewBasicAuthEngine creates a new BasicAuthEngine for secret.
func NewBasicAuthEngine(secret string) *BasicAuthEngine {
	return &BasicAuthEngine{Secret: secret}
}

// AuthenticateRequest checks the Authorization header for valid Basic Auth
// credentials. It returns a User object if the credentials are valid, nil otherwise.
func (e *BasicAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	_, pass, ok := r.BasicAuth()
	if !ok || !secretsEqual(pass, e.Secret) {
		return nil, nil
	}
	return &User{Method: "basic"}, nil
}
