package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/contentforge/api/internal/auth"
	"github.com/contentforge/api/pkg/response"
)

var errAuthNotConfigured = errors.New("authentication not configured")

// AuthMiddleware handles JWT authentication. Zitadel tokens are tried first
// when a verifier is configured, then HMAC tokens signed with jwtSecret.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthMiddleware creates auth middleware. verifier may be nil.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string, tokenTTL time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// ValidateToken resolves the user id carried by a bearer token
func (m *AuthMiddleware) ValidateToken(tokenString string) (string, error) {
	if m.verifier != nil {
		claims, err := m.verifier.Validate(tokenString)
		if err == nil {
			return claims.UserID, nil
		}
		if m.jwtSecret == "" {
			return "", err
		}
	}

	if m.jwtSecret != "" {
		claims, err := auth.ValidateHMACToken(tokenString, m.jwtSecret)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}

	return "", errAuthNotConfigured
}

// Authenticate validates the JWT from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		userID, err := m.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, errAuthNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", userID)
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GenerateToken creates an HMAC token (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID, email string) (string, error) {
	if m.jwtSecret == "" {
		return "", errAuthNotConfigured
	}
	return auth.SignHMACToken(userID, email, m.jwtSecret, m.tokenTTL)
}
