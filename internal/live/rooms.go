package live

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/chat"
)

// room is one conversation with open views and the upstream feed they share.
// owner is the viewer whose session opened feed; reopens counts feeds
// reopened since the last delivered change.
type room struct {
	conv    string
	viewers map[*Viewer]bool
	feed    *chat.Feed
	owner   *Viewer
	opening bool
	reopens int
}

// normalizeConv trims and canonicalises a conversation id; "" when it is
// not an id.
func normalizeConv(conv string) string {
	id, err := uuid.Parse(strings.TrimSpace(conv))
	if err != nil {
		return ""
	}
	return id.String()
}

func (h *Hub) join(v *Viewer) *room {
	r, ok := h.rooms[v.Conv]
	if !ok {
		r = &room{conv: v.Conv, viewers: map[*Viewer]bool{}}
		h.rooms[v.Conv] = r
	}
	r.viewers[v] = true
	return r
}

// leave removes v and reports whether the room is now empty and dropped.
func (h *Hub) leave(v *Viewer) (*room, bool) {
	r, ok := h.rooms[v.Conv]
	if !ok {
		return nil, false
	}
	delete(r.viewers, v)
	if len(r.viewers) > 0 {
		return r, false
	}
	delete(h.rooms, v.Conv)
	return r, true
}

// successor picks the viewer whose session reopens an ended feed: any
// viewer but skip, and none once every viewer has had a turn without a
// change getting through.
func (r *room) successor(skip *Viewer) *Viewer {
	if r.reopens >= len(r.viewers) {
		return nil
	}
	for v := range r.viewers {
		if v != skip {
			return v
		}
	}
	return nil
}

func (r *room) snapshot() []*Viewer {
	out := make([]*Viewer, 0, len(r.viewers))
	for v := range r.viewers {
		out = append(out, v)
	}
	return out
}
