package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"playroom/internal/middleware"
	"playroom/internal/models"
)

const tokenTTL = 24 * time.Hour

type loginRequest struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Login bootstraps the caller's profile, asserts presence, and issues a JWT
// whose subject is the uid.
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.UID == "" {
		return respondError(c, models.NewValidationError("uid is required"))
	}

	user, err := s.sessions.Login(c.Context(), req.UID, req.Username, req.Avatar)
	if err != nil {
		return respondError(c, err)
	}

	claims := jwt.MapClaims{
		"sub": user.UID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		s.log.Error("token signing failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not issue token",
		})
	}

	return c.JSON(fiber.Map{"token": token, "user": user})
}

// Logout asserts offline before the client drops its token.
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.sessions.Logout(c.Context(), middleware.UID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMyProfile returns the caller's profile document.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.sessions.Profile(c.Context(), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// PresenceBackground arms the caller's offline grace timer.
func (s *Server) PresenceBackground(c *fiber.Ctx) error {
	s.presence.ScheduleOffline(middleware.UID(c))
	return c.SendStatus(fiber.StatusNoContent)
}

// PresenceForeground cancels the grace timer and re-asserts online.
func (s *Server) PresenceForeground(c *fiber.Ctx) error {
	if err := s.presence.CancelOffline(c.Context(), middleware.UID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
