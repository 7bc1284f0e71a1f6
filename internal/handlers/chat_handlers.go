package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/chat"
)

type dayGroupView struct {
	Day   string             `json:"day"`
	Items []chat.MessageView `json:"items"`
}

type conversationView struct {
	ID       string         `json:"id"`
	PeerID   string         `json:"peer_id"`
	Peer     *chat.Profile  `json:"peer"`
	Title    string         `json:"title"`
	Presence string         `json:"presence"`
	Initial  string         `json:"initial"`
	Groups   []dayGroupView `json:"groups"`
}

type bodyInput struct {
	Body string `json:"body"`
}

// idParam reads :id as a canonical uuid.
func idParam(c *fiber.Ctx) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func (s *Server) location(c *fiber.Ctx) (*time.Location, error) {
	tz := c.Query("tz")
	if tz == "" {
		return s.cfg.Location, nil
	}
	return time.LoadLocation(tz)
}

// ThreadsHandler GET /api/threads?q=&unread=
// Missing parameters fall back to the sidebar state.
func (s *Server) ThreadsHandler(c *fiber.Ctx) error {
	filter := s.uiFor(c).View().ThreadFilter()
	args := c.Context().QueryArgs()
	if args.Has("q") {
		filter.Query = c.Query("q")
	}
	if args.Has("unread") {
		filter.UnreadOnly = c.QueryBool("unread")
	}
	list, err := s.serviceFor(c).ListThreads(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(chat.FilterThreads(list, filter))
}

// StartConversationHandler POST /api/conversations {"user_id": ...}
func (s *Server) StartConversationHandler(c *fiber.Ctx) error {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	conv, err := s.serviceFor(c).StartConversation(c.UserContext(), strings.TrimSpace(in.UserID))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": conv})
}

// OpenConversationHandler GET /api/conversations/:id?tz=
func (s *Server) OpenConversationHandler(c *fiber.Ctx) error {
	conv, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid conversation id")
	}
	loc, err := s.location(c)
	if err != nil {
		return badRequest(c, "unknown time zone")
	}
	svc := s.serviceFor(c)
	ch, err := svc.OpenChat(c.UserContext(), conv)
	if err != nil {
		return respondError(c, err)
	}
	out := conversationView{
		ID:       ch.ID,
		PeerID:   ch.PeerID,
		Peer:     ch.Peer,
		Title:    ch.Title(),
		Presence: chat.Presence(ch.Peer, loc),
		Initial:  chat.Initial(ch.Peer),
		Groups:   []dayGroupView{},
	}
	for _, g := range ch.Groups(s.uiFor(c).View().Search(), loc) {
		gv := dayGroupView{Day: g.Day, Items: make([]chat.MessageView, 0, len(g.Messages))}
		for _, m := range g.Messages {
			gv.Items = append(gv.Items, chat.ViewOf(m, svc.Me()))
		}
		out.Groups = append(out.Groups, gv)
	}
	return c.JSON(out)
}

// SendMessageHandler POST /api/conversations/:id/messages
func (s *Server) SendMessageHandler(c *fiber.Ctx) error {
	conv, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid conversation id")
	}
	var in bodyInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	svc := s.serviceFor(c)
	m, err := svc.SendMessage(c.UserContext(), conv, in.Body)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat.ViewOf(*m, svc.Me()))
}

// ComposeHandler POST /api/conversations/:id/compose
// Submits the composer: edits the message being edited, otherwise sends.
func (s *Server) ComposeHandler(c *fiber.Ctx) error {
	conv, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid conversation id")
	}
	ui := s.uiFor(c)
	view := ui.View()
	svc := s.serviceFor(c)
	if view.EditingMessageID != "" {
		if err := svc.EditMessage(c.UserContext(), view.EditingMessageID, view.ComposerText); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"edited": view.EditingMessageID, "ui": ui.ResetComposer()})
	}
	m, err := svc.SendMessage(c.UserContext(), conv, view.ComposerText)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": chat.ViewOf(*m, svc.Me()), "ui": ui.ResetComposer()})
}

// MarkReadHandler POST /api/conversations/:id/read
func (s *Server) MarkReadHandler(c *fiber.Ctx) error {
	conv, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid conversation id")
	}
	if err := s.serviceFor(c).MarkDeliveredRead(c.UserContext(), conv); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EditMessageHandler PATCH /api/messages/:id
func (s *Server) EditMessageHandler(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid message id")
	}
	var in bodyInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := s.serviceFor(c).EditMessage(c.UserContext(), id, in.Body); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMessageHandler DELETE /api/messages/:id
func (s *Server) DeleteMessageHandler(c *fiber.Ctx) error {
	id, ok := idParam(c)
	if !ok {
		return badRequest(c, "invalid message id")
	}
	if err := s.serviceFor(c).DeleteMessage(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
