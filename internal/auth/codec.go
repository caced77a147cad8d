package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the decoded content of a session credential.
type Session struct {
	AccountID string
	IssuedAt  time.Time
}

// Codec signs and verifies session credentials. It is stateless: a pure
// function of its secret, its expiry horizon, and the injected clock.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec constructs a Codec. A nil clock defaults to time.Now.
func NewCodec(secret string, ttl time.Duration, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    now,
	}
}

// Issue produces a signed HS256 token binding accountID and the current
// issued-at time, expiring after the configured horizon.
func (c *Codec) Issue(accountID string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", errors.New("account id is required")
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks the signature and expiry of a token and returns the
// session it carries. Failures are ErrTokenExpired or ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (Session, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, ErrInvalidToken
	}
	if !token.Valid {
		return Session{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return Session{}, ErrInvalidToken
	}
	return Session{
		AccountID: claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
	}, nil
}

// TTL returns the configured expiry horizon.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
