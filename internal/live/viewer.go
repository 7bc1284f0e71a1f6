package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/state"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var ErrBadConversation = errors.New("invalid conversation id")

// Conversations is the part of the domain a live view uses, bound to the
// viewing user.
type Conversations interface {
	Me() string
	Watch(ctx context.Context, conv string) (*chat.Feed, error)
	MarkDeliveredRead(ctx context.Context, conv string) error
	SendMessage(ctx context.Context, conv, body string) (*chat.Message, error)
	SearchProfiles(ctx context.Context, query string) ([]chat.Profile, error)
}

// ConnLike is the socket a viewer talks over.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Viewer is one browser socket showing one conversation.
type Viewer struct {
	ID   string
	Conv string
	Conn ConnLike
	Send chan []byte

	svc    Conversations
	hub    *Hub
	search *state.Debouncer

	mu     sync.Mutex
	closed bool
}

// NewViewer prepares a view of conv for svc's user. Searches typed on the
// socket run debounce after the last keystroke.
func NewViewer(hub *Hub, svc Conversations, conv string, conn ConnLike, debounce time.Duration) (*Viewer, error) {
	id := normalizeConv(conv)
	if id == "" {
		return nil, ErrBadConversation
	}
	return &Viewer{
		ID:     uuid.NewString(),
		Conv:   id,
		Conn:   conn,
		Send:   make(chan []byte, 16),
		svc:    svc,
		hub:    hub,
		search: state.NewDebouncer(debounce),
	}, nil
}

// push queues a frame without blocking; a full or closed viewer drops it.
func (v *Viewer) push(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.Send <- data:
	default:
	}
}

func (v *Viewer) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.search.Stop()
	close(v.Send)
}

func (v *Viewer) markRead(ctx context.Context) {
	if err := v.svc.MarkDeliveredRead(ctx, v.Conv); err != nil {
		jww.WARN.Printf("[live] mark %s for %s: %v", v.Conv, v.svc.Me(), err)
	}
}

// ReadPump handles frames from the browser until the socket fails, then
// unregisters the viewer.
func (v *Viewer) ReadPump(ctx context.Context) {
	defer v.hub.Unregister(v)
	for {
		_, data, err := v.Conn.ReadMessage()
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		switch in.Type {
		case FrameSend:
			if _, err := v.svc.SendMessage(ctx, v.Conv, in.Body); err != nil {
				v.push(errorFrame(err))
			}
		case FrameSearch:
			query := in.Query
			v.search.Call(func() {
				found, err := v.svc.SearchProfiles(ctx, query)
				if err != nil {
					v.push(errorFrame(err))
					return
				}
				v.push(searchFrame(found))
			})
		}
	}
}

func (v *Viewer) WritePump() {
	for data := range v.Send {
		_ = v.Conn.WriteMessage(websocket.TextMessage, data)
	}
}
