package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// FriendsHandler GET /api/contacts
func (s *Server) FriendsHandler(c *fiber.Ctx) error {
	friends, err := s.serviceFor(c).Friends(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(friends)
}

// IncomingRequestsHandler GET /api/contacts/requests
func (s *Server) IncomingRequestsHandler(c *fiber.Ctx) error {
	reqs, err := s.serviceFor(c).IncomingRequests(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reqs)
}

// SendContactRequestHandler POST /api/contacts {"user_id": ...}
func (s *Server) SendContactRequestHandler(c *fiber.Ctx) error {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	req, err := s.serviceFor(c).SendContactRequest(c.UserContext(), strings.TrimSpace(in.UserID))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// AcceptContactHandler POST /api/contacts/:id/accept
func (s *Server) AcceptContactHandler(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid request id")
	}
	if err := s.serviceFor(c).AcceptContact(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
