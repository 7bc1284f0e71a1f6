package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/state"
)

// UIHandler GET /api/ui
func (s *Server) UIHandler(c *fiber.Ctx) error {
	return c.JSON(s.uiFor(c).View())
}

// PatchUIHandler PATCH /api/ui
func (s *Server) PatchUIHandler(c *fiber.Ctx) error {
	var p state.Patch
	if err := c.BodyParser(&p); err != nil {
		return badRequest(c, "invalid body")
	}
	return c.JSON(s.uiFor(c).Set(p))
}

// ResetComposerHandler POST /api/ui/reset-composer
func (s *Server) ResetComposerHandler(c *fiber.Ctx) error {
	return c.JSON(s.uiFor(c).ResetComposer())
}

// BeginEditHandler POST /api/messages/:id/edit
// Loads one of the user's own messages into the composer in edit mode.
func (s *Server) BeginEditHandler(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid message id")
	}
	m, err := s.serviceFor(c).OwnMessage(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.uiFor(c).BeginEdit(*m))
}

// BeginReplyHandler POST /api/messages/:id/reply
func (s *Server) BeginReplyHandler(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid message id")
	}
	m, err := s.serviceFor(c).Message(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.uiFor(c).BeginReply(m.ID))
}

// AddEmojiHandler POST /api/ui/emoji {"emoji": ...}
func (s *Server) AddEmojiHandler(c *fiber.Ctx) error {
	var in struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	v, err := s.uiFor(c).AddEmoji(in.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(v)
}

// EmojiHandler GET /api/emoji
func (s *Server) EmojiHandler(c *fiber.Ctx) error {
	return c.JSON(chat.PickerEmojis)
}
