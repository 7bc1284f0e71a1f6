package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Change events a channel can listen for.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

const (
	heartbeatPeriod = 25 * time.Second
	joinTimeout     = 10 * time.Second
	writeWait       = 10 * time.Second
	realtimeVsn     = "1.0.0"
)

// ChangeFilter selects row changes on one table.
type ChangeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// Channel is a named realtime channel and the row changes it carries.
type Channel struct {
	Topic   string
	Changes []ChangeFilter
}

// Change is one row change pushed by the service.
type Change struct {
	Type            string          `json:"type"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp string          `json:"commit_timestamp"`
}

// Subscription delivers changes in arrival order until closed.
type Subscription struct {
	changes <-chan Change
	stop    func()
	once    sync.Once
	err     atomic.Value
}

// NewSubscription wraps a change stream; stop is called once on Close.
func NewSubscription(changes <-chan Change, stop func()) *Subscription {
	return &Subscription{changes: changes, stop: stop}
}

// Changes is closed when the subscription ends for any reason.
func (s *Subscription) Changes() <-chan Change { return s.changes }

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// Err reports why the stream ended, nil after a clean Close.
func (s *Subscription) Err() error {
	if v, ok := s.err.Load().(errBox); ok {
		return v.err
	}
	return nil
}

// errBox keeps the stored type constant for atomic.Value.
type errBox struct{ err error }

func (s *Subscription) fail(err error) {
	if err != nil {
		s.err.Store(errBox{err})
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type phxReply struct {
	Status   string `json:"status"`
	Response struct {
		Reason string `json:"reason"`
	} `json:"response"`
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.base + realtimePath)
	if err != nil {
		return "", errors.Wrap(err, "realtime url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"apikey": {c.key}, "vsn": {realtimeVsn}}.Encode()
	return u.String(), nil
}

type realtimeConn struct {
	ws  *websocket.Conn
	mu  sync.Mutex
	ref uint64
}

func (rc *realtimeConn) nextRef() string {
	return strconv.FormatUint(atomic.AddUint64(&rc.ref, 1), 10)
}

func (rc *realtimeConn) send(topic, event string, payload interface{}, joinRef string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := rc.nextRef()
	msg := phxMessage{Topic: topic, Event: event, Payload: body, Ref: &ref}
	if joinRef != "" {
		msg.JoinRef = &joinRef
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_ = rc.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ref, rc.ws.WriteJSON(msg)
}

// Subscribe joins ch and streams its row changes. The returned subscription
// stops when ctx is done or Close is called.
func (c *Client) Subscribe(ctx context.Context, ch Channel) (*Subscription, error) {
	target, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial realtime")
	}
	rc := &realtimeConn{ws: ws}
	topic := "realtime:" + ch.Topic

	token := c.token
	if token == "" {
		token = c.key
	}
	changes := ch.Changes
	if changes == nil {
		changes = []ChangeFilter{}
	}
	join := map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast":        map[string]bool{"self": false},
			"presence":         map[string]string{"key": ""},
			"postgres_changes": changes,
		},
		"access_token": token,
	}
	joinRef, err := rc.send(topic, "phx_join", join, "")
	if err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "join channel")
	}
	if err := awaitJoin(ws, topic, joinRef); err != nil {
		_ = ws.Close()
		return nil, err
	}
	jww.DEBUG.Printf("[realtime] joined %s", topic)

	out := make(chan Change)
	runCtx, cancel := context.WithCancel(ctx)
	sub := NewSubscription(out, func() {
		cancel()
		_, _ = rc.send(topic, "phx_leave", map[string]string{}, joinRef)
		_ = ws.Close()
	})

	go func() {
		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				// unblocks the reader
				sub.Close()
				return
			case <-ticker.C:
				if _, err := rc.send("phoenix", "heartbeat", map[string]string{}, ""); err != nil {
					jww.DEBUG.Printf("[realtime] heartbeat %s: %v", topic, err)
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			var msg phxMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if runCtx.Err() == nil {
					sub.fail(errors.Wrap(err, "realtime read"))
					jww.WARN.Printf("[realtime] %s: %v", topic, err)
				}
				return
			}
			change, ok, err := decodeFrame(msg, topic)
			if err != nil {
				sub.fail(err)
				jww.WARN.Printf("[realtime] %s: %v", topic, err)
				return
			}
			if !ok {
				continue
			}
			select {
			case out <- change:
			case <-runCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

func awaitJoin(ws *websocket.Conn, topic, ref string) error {
	_ = ws.SetReadDeadline(time.Now().Add(joinTimeout))
	defer ws.SetReadDeadline(time.Time{})
	for {
		var msg phxMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return errors.Wrap(err, "await join reply")
		}
		if msg.Topic != topic || msg.Event != "phx_reply" || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return errors.Wrap(err, "decode join reply")
		}
		if reply.Status != "ok" {
			reason := reply.Response.Reason
			if reason == "" {
				reason = reply.Status
			}
			return &ServiceError{Message: "join " + topic + ": " + reason}
		}
		return nil
	}
}

// decodeFrame extracts a row change from a channel frame. ok is false for
// frames that carry none (replies, presence, system notices).
func decodeFrame(msg phxMessage, topic string) (Change, bool, error) {
	if msg.Topic != topic {
		return Change{}, false, nil
	}
	switch msg.Event {
	case "postgres_changes":
		var payload struct {
			Data Change `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return Change{}, false, errors.Wrap(err, "decode change")
		}
		payload.Data.Type = strings.ToUpper(payload.Data.Type)
		return payload.Data, true, nil
	case "phx_error":
		return Change{}, false, errors.New("channel " + topic + " crashed")
	case "phx_close":
		return Change{}, false, errors.New("channel " + topic + " closed by server")
	}
	return Change{}, false, nil
}
