package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Chat is an open conversation: the peer and the loaded history.
type Chat struct {
	ID       string    `json:"id"`
	PeerID   string    `json:"peer_id"`
	Peer     *Profile  `json:"peer"`
	Messages []Message `json:"messages"`
}

// Apply folds a live change into the history. Inserts are appended, updates
// replace the message with the same id. Nothing is deduplicated or
// reordered.
func (c *Chat) Apply(ch Change) {
	switch ch.Type {
	case ChangeInsert:
		c.Messages = append(c.Messages, ch.Message)
	case ChangeUpdate:
		for i := range c.Messages {
			if c.Messages[i].ID == ch.Message.ID {
				c.Messages[i] = ch.Message
				return
			}
		}
	}
}

// Groups returns the history, narrowed by s, as day groups in loc.
func (c *Chat) Groups(s Search, loc *time.Location) []DayGroup {
	return GroupMessages(c.Messages, s, loc)
}

// Title is the peer's username, or "Chat" when unknown.
func (c *Chat) Title() string { return PeerTitle(c.Peer) }

func PeerTitle(p *Profile) string {
	if p == nil || deref(p.Username) == "" {
		return "Chat"
	}
	return *p.Username
}

// Presence is "last seen HH:MM" in loc, or "online" when the peer has no
// last seen time.
func Presence(p *Profile, loc *time.Location) string {
	if p == nil || p.LastSeenAt == nil {
		return "online"
	}
	if loc == nil {
		loc = time.Local
	}
	return "last seen " + p.LastSeenAt.In(loc).Format("15:04")
}

// Initial is the avatar fallback letter.
func Initial(p *Profile) string {
	name := strings.TrimSpace(deref(p.fullName()))
	if name == "" {
		name = PeerTitle(p)
	}
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}

func (p *Profile) fullName() *string {
	if p == nil {
		return nil
	}
	return p.FullName
}

// Peer returns the other member of conv. ErrNotMember is returned when the
// caller is not in the conversation.
func (s *Service) Peer(ctx context.Context, conv string) (string, error) {
	if err := s.signedIn(); err != nil {
		return "", err
	}
	var peer *string
	err := s.store.RPC(ctx, RPCGetConversationPeer, map[string]string{"conv_id": conv}, &peer)
	if err != nil {
		return "", errors.Wrapf(err, "peer of %s", conv)
	}
	if peer == nil || *peer == "" {
		return "", ErrNotMember
	}
	return *peer, nil
}

// OpenChat loads the peer, its profile and the oldest history-limit
// messages in send order, then marks the peer's messages delivered and read.
func (s *Service) OpenChat(ctx context.Context, conv string) (*Chat, error) {
	peer, err := s.Peer(ctx, conv)
	if err != nil {
		return nil, err
	}
	c := &Chat{ID: conv, PeerID: peer}
	if c.Peer, err = s.Profile(ctx, peer); err != nil {
		return nil, err
	}
	q := backend.Select().
		Eq("conversation_id", conv).
		OrderBy("created_at", true).
		Limit(s.historyLimit)
	if err := s.store.Select(ctx, TableMessages, q, &c.Messages); err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if err := s.MarkDeliveredRead(ctx, conv); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkDeliveredRead stamps delivered_at and then read_at on the peer's
// messages in conv that lack them. Running it again changes nothing.
func (s *Service) MarkDeliveredRead(ctx context.Context, conv string) error {
	if err := s.signedIn(); err != nil {
		return err
	}
	for _, col := range []string{"delivered_at", "read_at"} {
		q := backend.Where().
			Eq("conversation_id", conv).
			Neq("sender_id", s.me).
			IsNull(col)
		patch := map[string]time.Time{col: s.timestamp()}
		if err := s.store.Update(ctx, TableMessages, patch, q); err != nil {
			return errors.Wrapf(err, "mark %s", col)
		}
	}
	return nil
}

type newMessage struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	Type           string `json:"type"`
}

// SendMessage posts body to conv. The message starts with no delivery or
// read time.
func (s *Service) SendMessage(ctx context.Context, conv, body string) (*Message, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	var m Message
	row := newMessage{ConversationID: conv, SenderID: s.me, Body: body, Type: "text"}
	if err := s.store.Insert(ctx, TableMessages, row, &m); err != nil {
		return nil, errors.Wrap(err, "send message")
	}
	return &m, nil
}

// Message fetches one message the user can see.
func (s *Service) Message(ctx context.Context, id string) (*Message, error) {
	return s.findMessage(ctx, backend.Select().Eq("id", id))
}

// OwnMessage is Message limited to the user's own messages.
func (s *Service) OwnMessage(ctx context.Context, id string) (*Message, error) {
	return s.findMessage(ctx, backend.Select().Eq("id", id).Eq("sender_id", s.me))
}

func (s *Service) findMessage(ctx context.Context, q backend.Query) (*Message, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	var m Message
	if err := s.store.Select(ctx, TableMessages, q.MaybeSingle(), &m); err != nil {
		return nil, errors.Wrap(err, "load message")
	}
	if m.ID == "" {
		return nil, ErrNoMessage
	}
	return &m, nil
}

// EditMessage replaces the body of one of the user's own messages.
func (s *Service) EditMessage(ctx context.Context, id, body string) error {
	if err := s.signedIn(); err != nil {
		return err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}
	q := backend.Where().Eq("id", id).Eq("sender_id", s.me)
	if err := s.store.Update(ctx, TableMessages, map[string]string{"body": body}, q); err != nil {
		return errors.Wrap(err, "edit message")
	}
	return nil
}

func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	if err := s.signedIn(); err != nil {
		return err
	}
	q := backend.Where().Eq("id", id).Eq("sender_id", s.me)
	if err := s.store.Delete(ctx, TableMessages, q); err != nil {
		return errors.Wrap(err, "delete message")
	}
	return nil
}

// Feed streams live message changes of one conversation.
type Feed struct {
	sub  *backend.Subscription
	out  chan Change
	done chan struct{}
	once sync.Once
}

// Changes is closed when the feed ends.
func (f *Feed) Changes() <-chan Change { return f.out }

func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.done)
		f.sub.Close()
	})
}

// Err is why the upstream stream ended, nil after Close.
func (f *Feed) Err() error { return f.sub.Err() }

// Watch subscribes to inserts and updates of messages in conv.
func (s *Service) Watch(ctx context.Context, conv string) (*Feed, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	filter := "conversation_id=eq." + conv
	sub, err := s.store.Subscribe(ctx, backend.Channel{
		Topic: "messages:" + conv,
		Changes: []backend.ChangeFilter{
			{Event: backend.EventInsert, Schema: "public", Table: TableMessages, Filter: filter},
			{Event: backend.EventUpdate, Schema: "public", Table: TableMessages, Filter: filter},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "watch %s", conv)
	}
	f := &Feed{sub: sub, out: make(chan Change), done: make(chan struct{})}
	go f.run()
	return f, nil
}

func (f *Feed) run() {
	defer close(f.out)
	for bc := range f.sub.Changes() {
		var ch Change
		switch bc.Type {
		case backend.EventInsert:
			ch.Type = ChangeInsert
		case backend.EventUpdate:
			ch.Type = ChangeUpdate
		default:
			continue
		}
		if err := json.Unmarshal(bc.Record, &ch.Message); err != nil {
			jww.WARN.Printf("[chat] bad %s record: %v", bc.Type, err)
			continue
		}
		select {
		case f.out <- ch:
		case <-f.done:
			return
		}
	}
}
