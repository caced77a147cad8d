package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCodecRoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec("test-secret", time.Hour, fixedClock(issued))

	token, err := codec.Issue("64f1c0ffee64f1c0ffee64f1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sess, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "64f1c0ffee64f1c0ffee64f1", sess.AccountID)
	assert.True(t, sess.IssuedAt.Equal(issued))
}

func TestCodecRejectsEmptyAccountID(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, nil)

	_, err := codec.Issue("")
	assert.Error(t, err)

	_, err = codec.Issue("   ")
	assert.Error(t, err)
}

func TestCodecExpiry(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec("test-secret", time.Hour, fixedClock(issued))

	token, err := codec.Issue("64f1c0ffee64f1c0ffee64f1")
	require.NoError(t, err)

	// Same codec one second past expiry.
	late := NewCodec("test-secret", time.Hour, fixedClock(issued.Add(time.Hour+time.Second)))
	_, err = late.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Just inside the horizon it still verifies.
	edge := NewCodec("test-secret", time.Hour, fixedClock(issued.Add(time.Hour-time.Second)))
	_, err = edge.Verify(token)
	assert.NoError(t, err)
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, nil)
	token, err := codec.Issue("64f1c0ffee64f1c0ffee64f1")
	require.NoError(t, err)

	other := NewCodec("other-secret", time.Hour, nil)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodecRejectsWrongSigningMethod(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, nil)

	claims := jwt.RegisteredClaims{
		Subject:   "64f1c0ffee64f1c0ffee64f1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, nil)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestCodecRejectsMissingSubject(t *testing.T) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	codec := NewCodec("test-secret", time.Hour, nil)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
