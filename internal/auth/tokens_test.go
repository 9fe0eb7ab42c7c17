package auth

import (
	"strings"
	"testing"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "707172737475767778797a7b7c7d7e7f808182838485868788898a8b8c8d8e8f"

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	s, err := NewTokenService(testKeyHex, 15*time.Minute)
	require.NoError(t, err)
	return s
}

func TestNewTokenService_RejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", strings.Repeat("z", 64)} {
		_, err := NewTokenService(key, time.Minute)
		assert.Error(t, err, key)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	s := newTestTokens(t)

	token, err := s.GenerateAccessToken("  alice ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := s.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Owner)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.Expiration, 5*time.Second)
}

func TestGenerateAccessToken_BlankOwner(t *testing.T) {
	_, err := newTestTokens(t).GenerateAccessToken("   ")
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	s := newTestTokens(t)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := s.GenerateAccessToken("alice")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestVerifyAccessToken_WrongKey(t *testing.T) {
	token, err := newTestTokens(t).GenerateAccessToken("alice")
	require.NoError(t, err)

	other, err := NewTokenService(strings.Repeat("ab", 32), time.Minute)
	require.NoError(t, err)
	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)

	_, err = other.VerifyAccessToken("not-a-token")
	assert.Error(t, err)
}

func TestVerifyAccessToken_OwnerMustMatchSubject(t *testing.T) {
	s := newTestTokens(t)
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject("alice")
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(time.Minute))
	require.NoError(t, token.Set("owner", "mallory"))

	_, err := s.VerifyAccessToken(token.V4Encrypt(s.symmetricKey, nil))
	assert.Error(t, err)
}
