package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// List returns all users except the caller, for picking a transfer recipient.
func (h *Handler) List(c *fiber.Ctx) error {
	callerID, _ := c.Locals("user_id").(int64)
	users, err := h.service.List(c.UserContext(), callerID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, userResponse{ID: user.ID, Username: user.Username})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": out})
}
