package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/minte-pay/minte/internal/auth"
	"github.com/minte-pay/minte/internal/identity"
)

// RegisterAuthRoutes wires the public registration and login endpoints.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", ids.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
