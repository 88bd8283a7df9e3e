package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig configures session token verification.
type TokenConfig struct {
	Secret    string
	Algorithm string
	Issuer    string
	TTL       time.Duration
}

// SessionClaims is the JWT payload carried by the session cookie.
type SessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates session tokens. Tokens are issued elsewhere; Issue
// exists for tooling and tests.
type TokenVerifier struct {
	secret    []byte
	algorithm string
	issuer    string
	ttl       time.Duration
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(cfg TokenConfig) (*TokenVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token verifier: secret required")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	if _, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token verifier: unsupported algorithm %q", alg)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenVerifier{secret: []byte(cfg.Secret), algorithm: alg, issuer: cfg.Issuer, ttl: ttl}, nil
}

// Verify parses the token and returns the identity it carries.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: token missing", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{v.algorithm})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	id := Identity{Username: strings.TrimSpace(claims.Username), Role: strings.TrimSpace(claims.Role)}
	if id.IsZero() {
		return Identity{}, fmt.Errorf("%w: token has no username", ErrUnauthorized)
	}
	return id, nil
}

// Issue signs a token for id.
func (v *TokenVerifier) Issue(id Identity, now time.Time) (string, error) {
	if id.IsZero() {
		return "", Validationf("username required")
	}
	claims := SessionClaims{
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(v.algorithm), claims)
	return token.SignedString(v.secret)
}
