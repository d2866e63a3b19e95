package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the access token claims issued by the identity service
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens locally with the shared secret
type JWTVerifier struct {
	secretKey []byte
	expiry    time.Duration
}

// NewJWTVerifier creates a verifier. expiry only affects tokens minted by GenerateAccessToken.
func NewJWTVerifier(secretKey string, expiry time.Duration) *JWTVerifier {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &JWTVerifier{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// GenerateAccessToken creates a new access token
func (v *JWTVerifier) GenerateAccessToken(userID, email, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(v.expiry)

	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns claims
func (v *JWTVerifier) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Verify implements Verifier. Every rejection is reported as ErrUnauthenticated.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims, err := v.ValidateAccessToken(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
