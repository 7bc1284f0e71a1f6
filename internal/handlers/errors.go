package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/live"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// statusOf maps an operation error to a response status and message.
// Service errors keep the service's own message.
func statusOf(err error) (int, string) {
	if chat.IsValidation(err) {
		return fiber.StatusBadRequest, errors.Cause(err).Error()
	}
	switch errors.Cause(err) {
	case chat.ErrEmptyBody, chat.ErrSelfChat, chat.ErrNotEmoji, live.ErrBadConversation:
		return fiber.StatusBadRequest, errors.Cause(err).Error()
	case chat.ErrNotMember, chat.ErrNoMessage:
		return fiber.StatusNotFound, err.Error()
	case chat.ErrNotSignedIn, backend.ErrNoSession:
		return fiber.StatusUnauthorized, err.Error()
	}
	if se, ok := backend.AsServiceError(err); ok {
		if se.Status >= 400 && se.Status < 500 {
			return se.Status, se.Error()
		}
		return fiber.StatusBadGateway, se.Error()
	}
	return fiber.StatusBadGateway, err.Error()
}

func respondError(c *fiber.Ctx, err error) error {
	code, msg := statusOf(err)
	if code >= 500 {
		jww.WARN.Printf("[http] %s %s: %v", c.Method(), c.Path(), err)
	} else {
		jww.DEBUG.Printf("[http] %s %s: %d %v", c.Method(), c.Path(), code, err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
