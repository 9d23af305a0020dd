package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "contentforge-api"

// UserClaims are the claims of HMAC-signed tokens issued by this service
type UserClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ValidateHMACToken validates an HS256 token signed with secret
func ValidateHMACToken(tokenString, secret string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// SignHMACToken issues an HS256 token. A zero ttl means no expiry.
func SignHMACToken(userID, email, secret string, ttl time.Duration) (string, error) {
	claims := UserClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
