package token

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kinship/pkg/errors"
)

func testSigner(now time.Time) *Signer {
	return &Signer{
		Secret:         []byte("test-secret"),
		AccessTimeout:  30 * time.Minute,
		RefreshTimeout: 7 * 24 * time.Hour,
		Now:            func() time.Time { return now },
	}
}

func TestGenerateAndValidateRefresh(t *testing.T) {
	s := testSigner(time.Now())

	pair, err := s.GenerateTokenPair("1001", "acme")
	require.NoError(t, err)
	assert.Equal(t, 1800, pair.ExpiresIn)

	uid, tid, err := s.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "1001", uid)
	assert.Equal(t, "acme", tid)
}

func TestAccessTokenIsNotRefresh(t *testing.T) {
	s := testSigner(time.Now())
	pair, err := s.GenerateTokenPair("1001", "acme")
	require.NoError(t, err)

	_, _, err = s.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrInvalidTokenType)

	claims := jwtv5.MapClaims{}
	_, _, err = jwtv5.NewParser().ParseUnverified(pair.AccessToken, claims)
	require.NoError(t, err)
	assert.False(t, IsRefresh(claims))
	assert.Equal(t, "acme", claims[TenantKey])
}

func TestRefreshTokensIssuedInSameSecondDiffer(t *testing.T) {
	s := testSigner(time.Now())

	first, err := s.GenerateTokenPair("1001", "acme")
	require.NoError(t, err)
	second, err := s.GenerateTokenPair("1001", "acme")
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, _, err = s.ValidateRefreshToken(second.RefreshToken)
	require.NoError(t, err)
}

func TestExpiredRefreshToken(t *testing.T) {
	issued := time.Now().Add(-8 * 24 * time.Hour)
	pair, err := testSigner(issued).GenerateTokenPair("1001", "acme")
	require.NoError(t, err)

	_, _, err = testSigner(time.Now()).ValidateRefreshToken(pair.RefreshToken)
	assert.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestWrongSecret(t *testing.T) {
	pair, err := testSigner(time.Now()).GenerateTokenPair("1001", "acme")
	require.NoError(t, err)

	other := testSigner(time.Now())
	other.Secret = []byte("other")
	_, _, err = other.ValidateRefreshToken(pair.RefreshToken)
	assert.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestNilSigner(t *testing.T) {
	var s *Signer
	_, err := s.GenerateTokenPair("1", "t")
	assert.ErrorIs(t, err, errors.ErrTokenGeneratorNotInitialized)
}
