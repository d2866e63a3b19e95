package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Email  string
}

// Verifier turns a bearer credential into an Identity. Implementations fail with
// ErrUnauthenticated when the credential is rejected.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ExtractBearer returns the credential of an "Authorization: Bearer <token>" header value.
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
