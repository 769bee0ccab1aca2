package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-key-with-enough-entropy"

func TestTokens_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens(testSecret, time.Hour)

	signed, err := tokens.GenerateToken("u-1", "alice@example.com")
	req.NoError(err)
	req.True(LooksLikeToken(signed))

	claims, err := tokens.ValidateToken(signed)
	req.NoError(err)
	req.Equal("u-1", claims.UserID)
	req.Equal("alice@example.com", claims.Identity)
	req.Equal(issuer, claims.Issuer)
}

func TestTokens_Expired(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens(testSecret, -time.Minute)

	signed, err := tokens.GenerateToken("u-1", "alice@example.com")
	req.NoError(err)

	_, err = tokens.ValidateToken(signed)
	req.Error(err)
}

func TestTokens_WrongSecret(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens(testSecret, time.Hour)
	other := NewTokens("a-completely-different-secret", time.Hour)

	signed, err := tokens.GenerateToken("u-1", "alice@example.com")
	req.NoError(err)

	_, err = other.ValidateToken(signed)
	req.Error(err)
}

func TestLooksLikeToken(t *testing.T) {
	tests := []struct {
		name  string
		claim string
		want  bool
	}{
		{"JWT shape", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1LTEifQ.c2ln", true},
		{"Email", "alice@example.com", false},
		{"Email with two dots", "first.last@sub.example", false},
		{"Empty", "", false},
		{"Two dots without header", "a.b.c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, LooksLikeToken(tt.claim))
		})
	}
}
