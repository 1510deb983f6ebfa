// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"errors"
	"strings"

	"smedia/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Fiber locals written by AuthRequired.
const (
	LocalIdentity = "identity"
	LocalUserID   = "userID"
)

// IdentityKey is the request context key holding the caller's Identity.
const IdentityKey contextKey = "identity"

// Identity is the authenticated caller as asserted by the identity service token.
// Email is the key used for like/repost/report membership and ownership checks.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Avatar string
}

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// IdentityFrom returns the identity stored on the request by AuthRequired.
func IdentityFrom(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(LocalIdentity).(Identity)
	return id, ok && id.Email != ""
}

// IdentityFromContext returns the identity carried by ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok && id.Email != ""
}

var (
	errMissingSubject = errors.New("Invalid token structure - missing subject")
	errMissingEmail   = errors.New("Invalid token structure - missing email")
)

// ParseIdentity validates a signed token and extracts the caller identity from its claims.
func ParseIdentity(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, errors.New("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("Invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, errMissingSubject
	}
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Identity{}, errMissingEmail
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)

	return Identity{UserID: sub, Email: email, Name: name, Avatar: picture}, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

func attachIdentity(c *fiber.Ctx, id Identity) {
	c.Locals(LocalIdentity, id)
	c.Locals(LocalUserID, id.UserID)

	ctx := context.WithValue(c.UserContext(), IdentityKey, id)
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	c.SetUserContext(ctx)
}

func unauthorized(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "UNAUTHORIZED",
	})
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return unauthorized(c, err)
	}

	id, err := ParseIdentity(tokenString)
	if err != nil {
		return unauthorized(c, err)
	}

	attachIdentity(c, id)
	return c.Next()
}

// WebSocketAuthRequired validates a token from the query string, falling back to the
// Authorization header. Browsers cannot set headers on WebSocket upgrades.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	tokenString := c.Query("token")
	if tokenString == "" {
		var err error
		tokenString, err = bearerToken(c)
		if err != nil {
			return unauthorized(c, errors.New("Token required"))
		}
	}

	id, err := ParseIdentity(tokenString)
	if err != nil {
		return unauthorized(c, err)
	}

	attachIdentity(c, id)
	return c.Next()
}
