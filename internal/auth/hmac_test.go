package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACTokenRoundTrip(t *testing.T) {
	token, err := SignHMACToken("u1", "a@b.c", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateHMACToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestValidateHMACToken_Rejects(t *testing.T) {
	good, err := SignHMACToken("u1", "", "secret", time.Hour)
	require.NoError(t, err)
	expired, err := SignHMACToken("u1", "", "secret", -time.Minute)
	require.NoError(t, err)
	noUser, err := SignHMACToken("", "", "secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", good},
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"missing user", noUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := "secret"
			if tt.name == "wrong secret" {
				secret = "other"
			}
			_, err := ValidateHMACToken(tt.token, secret)
			assert.Error(t, err)
		})
	}
}

func TestValidateHMACToken_RejectsNoneAlg(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, UserClaims{UserID: "u1"})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateHMACToken(s, "secret")
	assert.Error(t, err)
}
