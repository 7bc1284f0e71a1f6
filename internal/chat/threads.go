package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ThreadPreview is one row of the conversation sidebar.
type ThreadPreview struct {
	ConversationID string     `json:"conversation_id"`
	PeerID         string     `json:"peer_id"`
	Peer           *Profile   `json:"peer"`
	Title          string     `json:"title"`
	LastBody       string     `json:"last_body"`
	LastAt         *time.Time `json:"last_at"`
	Unread         int        `json:"unread"`
}

// ListThreads builds the sidebar: every conversation of the user with its
// peer, last message and unread count, most recent first.
func (s *Service) ListThreads(ctx context.Context) ([]*ThreadPreview, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	var members []Member
	q := backend.Select("conversation_id").Eq("user_id", s.me)
	if err := s.store.Select(ctx, TableConversationMembers, q, &members); err != nil {
		return nil, errors.Wrap(err, "memberships")
	}
	list := make([]*ThreadPreview, 0, len(members))
	for _, m := range members {
		p, err := s.preview(ctx, m.ConversationID)
		if errors.Cause(err) == ErrNotMember {
			jww.DEBUG.Printf("[chat] %s has no peer, skipped", m.ConversationID)
			continue
		}
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool { return newer(list[i].LastAt, list[j].LastAt) })
	return list, nil
}

// newer orders threads without messages last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}

func (s *Service) preview(ctx context.Context, conv string) (*ThreadPreview, error) {
	peer, err := s.Peer(ctx, conv)
	if err != nil {
		return nil, err
	}
	p := &ThreadPreview{ConversationID: conv, PeerID: peer}
	if p.Peer, err = s.Profile(ctx, peer); err != nil {
		return nil, err
	}
	p.Title = PeerTitle(p.Peer)

	var last []Message
	q := backend.Select("body", "created_at").
		Eq("conversation_id", conv).
		OrderBy("created_at", false).
		Limit(1)
	if err := s.store.Select(ctx, TableMessages, q, &last); err != nil {
		return nil, errors.Wrap(err, "last message")
	}
	if len(last) > 0 {
		p.LastBody = last[0].Body
		at := last[0].CreatedAt
		p.LastAt = &at
	}

	unread := backend.Where().
		Eq("conversation_id", conv).
		Neq("sender_id", s.me).
		IsNull("read_at")
	if p.Unread, err = s.store.Count(ctx, TableMessages, unread); err != nil {
		return nil, errors.Wrap(err, "unread count")
	}
	return p, nil
}

// ThreadFilter is the sidebar search box and unread toggle.
type ThreadFilter struct {
	Query      string
	UnreadOnly bool
}

// FilterThreads keeps threads whose title or last message contains the
// query, ignoring case, and with unread messages when UnreadOnly is set.
func FilterThreads(list []*ThreadPreview, f ThreadFilter) []*ThreadPreview {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]*ThreadPreview, 0, len(list))
	for _, p := range list {
		if f.UnreadOnly && p.Unread == 0 {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(deref(usernameOf(p.Peer))), q) &&
			!strings.Contains(strings.ToLower(p.LastBody), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func usernameOf(p *Profile) *string {
	if p == nil {
		return nil
	}
	return p.Username
}
