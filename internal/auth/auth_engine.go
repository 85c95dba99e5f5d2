package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// User identifies an authenticated caller. With a single shared secret there
// is only one principal; Method records how it was proven.
type User struct {
	Method string
}

type AuthEngine interface {

	// AuthenticateRequest inspects the given HTTP request for valid
	// authentication credentials. If valid, it returns a User object; otherwise, it
	// returns nil. An error is returned if there was an issue processing
	// the authentication.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (*User, error)
}

// secretsEqual compares two secrets in constant time. An empty configured
// secret never matches.
func secretsEqual(provided, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}
