package server

import (
	"github.com/gofiber/fiber/v2"

	"playroom/internal/middleware"
	"playroom/internal/models"
)

type createGroupBody struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CreateGroup creates a group chat with the caller as creator and member.
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	var body createGroupBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	self, err := s.sessions.Profile(c.Context(), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	group, err := s.chat.CreateGroup(c.Context(), self, body.Name, body.Members)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}
