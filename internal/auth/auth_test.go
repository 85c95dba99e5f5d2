package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"shelf/internal/auth"

	"github.com/stretchr/testify/require"
)

const secret = "correct horse"

func TestSharedSecretEngine(t *testing.T) {
	t.Parallel()

	engine := auth.NewSharedSecretEngine(secret)

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{name: "match", header: secret, ok: true},
		{name: "mismatch", header: "wrong", ok: false},
		{name: "missing", header: "", ok: false},
		{name: "prefix only", header: "correct", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/list", nil)
			if tc.header != "" {
				req.Header.Set("x-auth-password", tc.header)
			}

			user, err := engine.AuthenticateRequest(context.Background(), req)
			require.NoError(t, err)
			if tc.ok {
				require.NotNil(t, user, "expected request to authenticate")
				require.Equal(t, "header", user.Method)
			} else {
				require.Nil(t, user, "expected request to be rejected")
			}
		})
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	t.Parallel()

	engine := auth.NewDefaultAuthEngine("")

	req := httptest.NewRequest(http.MethodGet, "/api/list", nil)
	req.Header.Set(auth.PasswordHeader, "")
	req.SetBasicAuth("", "")

	user, err := engine.AuthenticateRequest(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, user, "an unset secret must not match an empty password")
}

func TestCompoundEngineAcceptsBasicAuth(t *testing.T) {
	t.Parallel()

	engine := auth.NewDefaultAuthEngine(secret)

	req := httptest.NewRequest(http.MethodGet, "/api/list", nil)
	req.SetBasicAuth("anyone", secret)
	user, err := engine.AuthenticateRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "basic", user.Method)

	req = httptest.NewRequest(http.MethodGet, "/api/list", nil)
	req.SetBasicAuth("anyone", "nope")
	user, err = engine.AuthenticateRequest(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, user)
}
