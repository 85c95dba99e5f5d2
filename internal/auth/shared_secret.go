package auth

import (
	"context"
	"net/http"
)

// PasswordHeader carries the shared secret on API requests.
const PasswordHeader = "X-Auth-Password"

// SharedSecretEngine accepts requests whose X-Auth-Password header matches
// the configured secret.
type SharedSecretEngine struct {
	Secret string
}

// NewSharedSecretEngine creates a SharedSecretEngine for secret.
func NewSharedSecretEngine(secret string) *SharedSecretEngine {
	return &SharedSecretEngine{Secret: secret}
}

func (e *SharedSecretEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	if !secretsEqual(r.Header.Get(PasswordHeader), e.Secret) {
		return nil, nil
	}
	return &User{Method: "header"}, nil
}
