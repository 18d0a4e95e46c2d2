// Package user reads the authenticated caller from the JWT issued by the
// external identity provider. Tokens are verified here, never issued.
package user

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	localsKey = "user"
)

// NewJWTMiddleware verifies HS256 bearer tokens. Requests for which public
// returns true skip verification.
func NewJWTMiddleware(secret string, public func(c *fiber.Ctx) bool) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		ContextKey:    localsKey,
		Filter:        public,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		},
	})
}

// PublicGET lets unauthenticated GET requests through for the given path
// prefixes.
func PublicGET(prefixes ...string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		if c.Method() != fiber.MethodGet {
			return false
		}
		p := c.Path()
		for _, prefix := range prefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		return false
	}
}

func claimsFromCtx(c *fiber.Ctx) (jwt.MapClaims, bool) {
	tok, ok := c.Locals(localsKey).(*jwt.Token)
	if !ok || tok == nil {
		return nil, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	return claims, ok
}

// GetUserIDFromCtx extracts the user_id claim from the verified token.
func GetUserIDFromCtx(c *fiber.Ctx) (int, error) {
	claims, ok := claimsFromCtx(c)
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	var id int
	switch v := claims["user_id"].(type) {
	case float64:
		id = int(v)
	case int:
		id = v
	case int64:
		id = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fiber.ErrUnauthorized
		}
		id = n
	default:
		return 0, fiber.ErrUnauthorized
	}
	if id <= 0 {
		return 0, fiber.ErrUnauthorized
	}
	return id, nil
}

// GetRoleFromCtx returns the role claim, defaulting to customer.
func GetRoleFromCtx(c *fiber.Ctx) string {
	claims, ok := claimsFromCtx(c)
	if !ok {
		return ""
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		return role
	}
	return RoleCustomer
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return GetRoleFromCtx(c) == RoleAdmin
}
