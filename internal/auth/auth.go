// Package auth identifies the recipient behind an HTTP request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated means the request carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the identity may not act for the requested recipient.
	ErrForbidden = errors.New("forbidden")
)

const (
	// RecipientParam is the query parameter naming the recipient.
	RecipientParam = "recipient"
	// TokenParam carries the token for clients that cannot set headers (EventSource).
	TokenParam = "access_token"

	bearerPrefix = "Bearer "
)

// Context resolves the recipient a request acts for.
type Context interface {
	Recipient(r *http.Request) (string, error)
}

// QueryParam trusts the recipient query parameter. For development and
// deployments behind an authenticating proxy.
type QueryParam struct{}

// Recipient returns the recipient query parameter.
func (QueryParam) Recipient(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get(RecipientParam))
	if id == "" {
		return "", fmt.Errorf("%w: %s parameter is required", ErrUnauthenticated, RecipientParam)
	}
	return id, nil
}

// JWT verifies HS256 bearer tokens and uses the subject as the recipient id.
type JWT struct {
	secret []byte
	issuer string
}

// NewJWT creates a verifier. An empty issuer accepts any issuer.
func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	return &JWT{secret: []byte(secret), issuer: issuer}, nil
}

// Recipient verifies the token and returns its subject. A recipient query
// parameter that names someone else is rejected with ErrForbidden.
func (j *JWT) Recipient(r *http.Request) (string, error) {
	raw := tokenFrom(r)
	if raw == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	if requested := r.URL.Query().Get(RecipientParam); requested != "" && requested != claims.Subject {
		return "", fmt.Errorf("%w: token subject does not match %s", ErrForbidden, RecipientParam)
	}
	return claims.Subject, nil
}

// Sign issues a token for recipientID. Used by tooling and tests.
func (j *JWT) Sign(recipientID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   recipientID,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return r.URL.Query().Get(TokenParam)
}
