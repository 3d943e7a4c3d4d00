package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/minte-pay/minte/internal/auth"
	"github.com/minte-pay/minte/internal/identity"
)

// JWTAuth validates bearer access tokens and stores the caller's user id in locals.
func JWTAuth(tokens *auth.Service, ids *identity.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		userID, err := tokens.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		ok, err := ids.Exists(c.UserContext(), userID)
		if err != nil || !ok {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}
