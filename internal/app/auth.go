package app

import (
	"context"
	"crypto/subtle"
)

// TokenAuthorizer authorizes admin operations against a single static token
// from configuration. The identity system behind it is out of scope; the
// engine only needs the yes/no capability.
type TokenAuthorizer struct {
	token string
}

func NewTokenAuthorizer(token string) *TokenAuthorizer {
	return &TokenAuthorizer{token: token}
}

func (a *TokenAuthorizer) Authorize(_ context.Context, token string) (bool, error) {
	if a.token == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(token)) == 1, nil
}
