package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/live"
	"github.com/pelusa-v/wachat/internal/state"
)

// Backend is the hosted service as the HTTP surface uses it.
type Backend interface {
	chat.Authenticator
	SignOut(ctx context.Context, token string) error
	// User asks the service who owns token.
	User(ctx context.Context, token string) (*backend.User, error)
	// Store binds the table and realtime API to a user's access token.
	Store(token string) chat.Store
}

type hosted struct {
	*backend.Client
}

// Hosted adapts a service client to Backend.
func Hosted(c *backend.Client) Backend { return hosted{c} }

func (h hosted) SignOut(ctx context.Context, token string) error {
	return h.WithSession(token).SignOut(ctx)
}

func (h hosted) User(ctx context.Context, token string) (*backend.User, error) {
	return h.WithSession(token).GetUser(ctx)
}

func (h hosted) Store(token string) chat.Store { return h.WithSession(token) }

type Config struct {
	HistoryLimit   int
	SearchLimit    int
	SearchDebounce time.Duration
	Location       *time.Location
	Now            func() time.Time
}

// Server holds what the handlers share.
type Server struct {
	backend Backend
	hub     *live.Hub
	ui      *state.Registry
	cfg     Config
}

func NewServer(b Backend, hub *live.Hub, ui *state.Registry, cfg Config) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{backend: b, hub: hub, ui: ui, cfg: cfg}
}

// Routes mounts the API on app.
func (s *Server) Routes(app *fiber.App) {
	app.Post("/api/auth/login", s.LoginHandler)
	app.Post("/api/auth/signup", s.SignUpHandler)

	api := app.Group("/api", s.RequireSession)
	api.Post("/auth/logout", s.LogoutHandler)
	api.Get("/auth/session", s.SessionHandler)

	api.Get("/profile", s.ProfileHandler)
	api.Put("/profile", s.SaveProfileHandler)
	api.Get("/profiles/search", s.SearchProfilesHandler) // ?q=

	api.Get("/threads", s.ThreadsHandler) // ?q=&unread=
	api.Post("/conversations", s.StartConversationHandler)
	api.Get("/conversations/:id", s.OpenConversationHandler) // ?tz=
	api.Post("/conversations/:id/messages", s.SendMessageHandler)
	api.Post("/conversations/:id/compose", s.ComposeHandler)
	api.Post("/conversations/:id/read", s.MarkReadHandler)
	api.Patch("/messages/:id", s.EditMessageHandler)
	api.Delete("/messages/:id", s.DeleteMessageHandler)
	api.Post("/messages/:id/edit", s.BeginEditHandler)
	api.Post("/messages/:id/reply", s.BeginReplyHandler)

	api.Get("/ui", s.UIHandler)
	api.Patch("/ui", s.PatchUIHandler)
	api.Post("/ui/reset-composer", s.ResetComposerHandler)
	api.Post("/ui/emoji", s.AddEmojiHandler)
	api.Get("/emoji", s.EmojiHandler)

	api.Get("/contacts", s.FriendsHandler)
	api.Get("/contacts/requests", s.IncomingRequestsHandler)
	api.Post("/contacts", s.SendContactRequestHandler)
	api.Post("/contacts/:id/accept", s.AcceptContactHandler)

	api.Get("/ws/conversations/:id", upgradeOnly, websocket.New(s.ConversationSocket)) // ?access_token=
}

const (
	localUser  = "user"
	localToken = "token"
)

// RequireSession accepts a bearer token from the Authorization header or,
// for sockets, the access_token query parameter. The token is decoded, not
// verified; the hosted service checks it on every call.
func (s *Server) RequireSession(c *fiber.Ctx) error {
	token := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
	if token == "" {
		token = c.Query("access_token")
	}
	claims, err := backend.ParseAccessToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	if !s.cfg.Now().Before(claims.ExpiresAt) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session expired"})
	}
	c.Locals(localUser, claims.UserID)
	c.Locals(localToken, token)
	return c.Next()
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func localString(c *fiber.Ctx, key string) string {
	v, _ := c.Locals(key).(string)
	return v
}

func (s *Server) service(user, token string) *chat.Service {
	return chat.NewService(s.backend.Store(token), user,
		chat.WithHistoryLimit(s.cfg.HistoryLimit),
		chat.WithSearchLimit(s.cfg.SearchLimit),
		chat.WithClock(s.cfg.Now))
}

func (s *Server) serviceFor(c *fiber.Ctx) *chat.Service {
	return s.service(localString(c, localUser), localString(c, localToken))
}

func (s *Server) uiFor(c *fiber.Ctx) *state.UI {
	return s.ui.Get(localString(c, localUser))
}
