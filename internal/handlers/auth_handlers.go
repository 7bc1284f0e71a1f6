package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pelusa-v/wachat/internal/chat"
)

// LoginHandler POST /api/auth/login
func (s *Server) LoginHandler(c *fiber.Ctx) error {
	var form chat.SignInForm
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "invalid body")
	}
	session, err := chat.SignIn(c.UserContext(), s.backend, form)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

// SignUpHandler POST /api/auth/signup
func (s *Server) SignUpHandler(c *fiber.Ctx) error {
	var form chat.SignUpForm
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := chat.SignUp(c.UserContext(), s.backend, form)
	if err != nil {
		return respondError(c, err)
	}
	// session is null until the email is confirmed
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": res.User, "session": res.Session})
}

// LogoutHandler POST /api/auth/logout
func (s *Server) LogoutHandler(c *fiber.Ctx) error {
	if err := s.backend.SignOut(c.UserContext(), localString(c, localToken)); err != nil {
		return respondError(c, err)
	}
	s.ui.Drop(localString(c, localUser))
	return c.SendStatus(fiber.StatusNoContent)
}

// SessionHandler GET /api/auth/session
// The user comes from the service, so a revoked token fails here.
func (s *Server) SessionHandler(c *fiber.Ctx) error {
	u, err := s.backend.User(c.UserContext(), localString(c, localToken))
	if err != nil {
		return respondError(c, err)
	}
	p, err := s.serviceFor(c).MyProfile(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": u.ID,
		"email":   u.Email,
		"user":    u,
		"profile": p,
	})
}

// ProfileHandler GET /api/profile
func (s *Server) ProfileHandler(c *fiber.Ctx) error {
	p, err := s.serviceFor(c).MyProfile(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if p == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "profile not found"})
	}
	return c.JSON(p)
}

// SaveProfileHandler PUT /api/profile
func (s *Server) SaveProfileHandler(c *fiber.Ctx) error {
	var form chat.ProfileForm
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "invalid body")
	}
	p, err := s.serviceFor(c).SaveProfile(c.UserContext(), form)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// SearchProfilesHandler GET /api/profiles/search?q=
func (s *Server) SearchProfilesHandler(c *fiber.Ctx) error {
	found, err := s.serviceFor(c).SearchProfiles(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(found)
}
