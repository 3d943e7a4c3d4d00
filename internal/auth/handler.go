package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/minte-pay/minte/internal/identity"
)

// Handler exposes login for registered users.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	token, err := h.svc.Issue(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "could not issue token")
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		UserID:      user.ID,
		Username:    user.Username,
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
	})
}
