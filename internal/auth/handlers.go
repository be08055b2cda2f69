package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Handler serves the login and identity endpoints.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a JWT.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
	}

	user, err := h.validateCredentials(req.Email, req.Password)
	if err != nil {
		log.Warn().Str("email", req.Email).Msg("login failed")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "invalid credentials",
		})
	}

	token, err := h.manager.GenerateToken(*user)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to generate token",
		})
	}

	log.Info().Str("email", user.Email).Msg("user logged in")
	return c.JSON(http.StatusOK, LoginResponse{Token: token, User: *user})
}

// Me returns the caller's identity.
func (h *Handler) Me(c echo.Context) error {
	user := GetUserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}
	return c.JSON(http.StatusOK, user)
}

// validateCredentials checks the static user list from AUTH_USERS.
// Format: EMAIL:PASSWORD:NAME:ROLES, users separated by semicolons, e.g.
// admin@example.com:pass:Admin:admin,approver;bob@example.com:pw:Bob:viewer
func (h *Handler) validateCredentials(email, password string) (*User, error) {
	usersEnv := os.Getenv("AUTH_USERS")
	if usersEnv == "" {
		usersEnv = "admin@example.com:admin:Administrator:admin,approver"
	}

	for _, entry := range strings.Split(usersEnv, ";") {
		parts := strings.Split(entry, ":")
		if len(parts) < 4 {
			continue
		}

		emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(parts[0])) == 1
		passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(parts[1])) == 1
		if emailOK && passwordOK {
			return &User{
				ID:    strings.ReplaceAll(email, "@", "-"),
				Email: email,
				Name:  parts[2],
				Roles: strings.Split(parts[3], ","),
			}, nil
		}
	}

	return nil, ErrInvalidCredentials
}
