package server

import (
	"github.com/gofiber/fiber/v2"

	"playroom/internal/middleware"
	"playroom/internal/models"
)

// SearchUsers finds an addable user by exact username.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	user, err := s.friends.Search(c.Context(), middleware.UID(c), c.Query("username"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

type friendRequestBody struct {
	To string `json:"to"`
}

// SendFriendRequest creates a pending request to another user.
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	var body friendRequestBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	req, err := s.friends.SendRequest(c.Context(), middleware.UID(c), body.To)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// AcceptFriendRequest creates the mutual edge and removes the request.
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	if err := s.friends.Accept(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RejectFriendRequest removes the request without creating an edge.
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	if err := s.friends.Reject(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetFriends returns the caller's friends as full profiles, online flag
// included.
func (s *Server) GetFriends(c *fiber.Ctx) error {
	uids, err := s.friends.Friends(c.Context(), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	profiles, err := s.friends.Profiles(c.Context(), uids)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"friends": profiles})
}
