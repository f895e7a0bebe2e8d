package xgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// AuthProvider applies authentication to every attempt of a request.
type AuthProvider interface {
	Apply(req *http.Request) error
}

// AuthFunc is a function that implements AuthProvider.
type AuthFunc func(req *http.Request) error

// Apply implements AuthProvider.
func (f AuthFunc) Apply(req *http.Request) error {
	return f(req)
}

// BearerAuth returns an AuthProvider that sends a static access token.
func BearerAuth(token string) AuthProvider {
	return AuthFunc(func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// TokenSource provides access tokens, for example from a refreshing login.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc is a function that implements TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// ErrEmptyToken is returned when a TokenSource yields an empty token.
var ErrEmptyToken = errors.New("token source returned an empty token")

// TokenAuth returns an AuthProvider that asks source for a token on every
// attempt, so a retried request picks up a refreshed token.
func TokenAuth(source TokenSource) AuthProvider {
	return AuthFunc(func(req *http.Request) error {
		token, err := source.Token(req.Context())
		if err != nil {
			return fmt.Errorf("fetch access token: %w", err)
		}
		if token == "" {
			return ErrEmptyToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// OAuth2TokenSource adapts an oauth2.TokenSource, such as one built from a
// client credentials config, for use with TokenAuth. Caching is left to the
// supplied source.
func OAuth2TokenSource(ts oauth2.TokenSource) TokenSource {
	return TokenSourceFunc(func(ctx context.Context) (string, error) {
		tok, err := ts.Token()
		if err != nil {
			return "", err
		}
		if tok == nil {
			return "", ErrEmptyToken
		}
		return tok.AccessToken, nil
	})
}
