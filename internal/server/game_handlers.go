package server

import (
	"github.com/gofiber/fiber/v2"

	"playroom/internal/middleware"
	"playroom/internal/models"
)

type gameInviteBody struct {
	To string `json:"to"`
}

// SendGameInvite invites a friend to a game.
func (s *Server) SendGameInvite(c *fiber.Ctx) error {
	var body gameInviteBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	self, err := s.sessions.Profile(c.Context(), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	invite, err := s.gate.Invite(c.Context(), self, body.To)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(invite)
}

// AcceptGameInvite converts a pending invitation into a live session.
func (s *Server) AcceptGameInvite(c *fiber.Ctx) error {
	session, err := s.gate.Accept(c.Context(), c.Params("id"), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// RejectGameInvite deletes a pending invitation.
func (s *Server) RejectGameInvite(c *fiber.Ctx) error {
	if err := s.gate.Reject(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetActiveGame returns the caller's in-progress session, if any.
func (s *Server) GetActiveGame(c *fiber.Ctx) error {
	session, ok, err := s.engine.ActiveSession(c.Context(), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{"active": true, "session": session})
}

type moveBody struct {
	Cell int `json:"cell"`
}

// ApplyGameMove places the caller's mark.
func (s *Server) ApplyGameMove(c *fiber.Ctx) error {
	var body moveBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	session, err := s.engine.ApplyMove(c.Context(), c.Params("id"), middleware.UID(c), body.Cell)
	if err != nil {
		return respondError(c, err)
	}
	middleware.MovesApplied.Inc()
	if session.Status == models.GameFinished {
		middleware.GamesFinished.Inc()
	}
	return c.JSON(session)
}

// ExitGame marks the session abandoned by the caller.
func (s *Server) ExitGame(c *fiber.Ctx) error {
	if err := s.engine.Exit(c.Context(), c.Params("id"), middleware.UID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RematchGame restarts a finished or exited session in place.
func (s *Server) RematchGame(c *fiber.Ctx) error {
	session, err := s.engine.Rematch(c.Context(), c.Params("id"), middleware.UID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

// GetGameStats returns a player's win/loss/draw tallies.
func (s *Server) GetGameStats(c *fiber.Ctx) error {
	wins, losses, draws, err := s.engine.Stats(c.Context(), c.Params("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"wins": wins, "losses": losses, "draws": draws})
}
