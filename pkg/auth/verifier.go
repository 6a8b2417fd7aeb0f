package auth

import "errors"

// ErrInvalidToken is returned when a bearer token does not resolve to a
// known principal.
var ErrInvalidToken = errors.New("invalid or unknown token")

// TokenVerifier resolves a bearer token into a verified principal.
// Token issuance and verification belong to the external identity
// service; implementations of this interface are the boundary to it.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// StaticVerifier is a TokenVerifier backed by a fixed token table. It is
// intended for development and testing; production deployments inject a
// verifier that talks to the identity service.
type StaticVerifier struct {
	tokens map[string]Principal
}

// NewStaticVerifier creates a StaticVerifier from a token -> principal map.
func NewStaticVerifier(tokens map[string]Principal) *StaticVerifier {
	if tokens == nil {
		tokens = map[string]Principal{}
	}
	return &StaticVerifier{tokens: tokens}
}

// Verify implements TokenVerifier.
func (v *StaticVerifier) Verify(token string) (Principal, error) {
	p, ok := v.tokens[token]
	if !ok || !p.Role.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

var _ TokenVerifier = (*StaticVerifier)(nil)
