/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// AuthProvider provides a token for bearer authorization.
type AuthProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// AuthProviderFunc is an adapter to allow the use of ordinary functions as AuthProvider.
type AuthProviderFunc func(ctx context.Context) (string, error)

// GetToken implements AuthProvider.
func (f AuthProviderFunc) GetToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticTokenProvider returns an AuthProvider that always returns the same token.
func StaticTokenProvider(token string) AuthProvider {
	return AuthProviderFunc(func(context.Context) (string, error) { return token, nil })
}

// AuthBearerRoundTripperError is returned when the token cannot be obtained.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return fmt.Sprintf("auth bearer round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthBearerRoundTripper sets "Authorization: Bearer <token>" in outgoing requests
// that don't have Authorization header yet.
type AuthBearerRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
}

// NewAuthBearerRoundTripper creates a new AuthBearerRoundTripper.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{Delegate: delegate, AuthProvider: authProvider}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return rt.Delegate.RoundTrip(req)
	}
	token, err := rt.AuthProvider.GetToken(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("Authorization", "Bearer "+token)
	return rt.Delegate.RoundTrip(req)
}
