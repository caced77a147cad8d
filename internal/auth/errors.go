package auth

import "errors"

// The authentication error taxonomy is a closed set of sentinels. Handlers
// match them with errors.Is and map each to a fixed, deliberately vague
// client message; none of them carries internal detail.
var (
	// ErrNoCredential means the request carried neither a bearer header
	// nor a session cookie.
	ErrNoCredential = errors.New("no credential")

	// ErrInvalidToken means the token signature or shape is invalid.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired means the token's expiry has elapsed.
	ErrTokenExpired = errors.New("token expired")

	// ErrAccountNotFound means the token referenced an account that no
	// longer resolves, including soft-deleted accounts.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStaleCredential means the password was changed after the token
	// was issued. This is the sole token-revocation mechanism.
	ErrStaleCredential = errors.New("stale credential")

	// ErrForbidden means the resolved account's role is not in the
	// allowed set for the route.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredential means a supplied email/password pair did not
	// verify against the stored hash.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInvalidOrExpiredToken covers both a wrong and an expired
	// password-reset secret; the two cases are indistinguishable on
	// purpose.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
