package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/pelusa-v/wachat/internal/live"
)

// ConversationSocket GET /api/ws/conversations/:id?access_token=
func (s *Server) ConversationSocket(c *websocket.Conn) {
	user, _ := c.Locals(localUser).(string)
	token, _ := c.Locals(localToken).(string)
	svc := s.service(user, token)

	v, err := live.NewViewer(s.hub, svc, c.Params("id"), c, s.cfg.SearchDebounce)
	if err != nil {
		data, _ := json.Marshal(live.Outbound{Type: live.FrameError, Error: err.Error()})
		_ = c.WriteMessage(websocket.TextMessage, data)
		return
	}
	if !s.hub.Register(v) {
		return
	}
	written := make(chan struct{})
	go func() {
		defer close(written)
		v.WritePump()
	}()
	v.ReadPump(context.Background())
	// Send is closed once the hub drops the viewer
	<-written
}
