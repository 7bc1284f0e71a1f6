// Package live fans realtime message changes out to the browser sockets
// viewing a conversation.
package live

import (
	"context"
	"sync"

	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var ErrFeedStopped = errors.New("live updates stopped")

type roomChange struct {
	conv   string
	change chat.Change
}

type feedOpened struct {
	conv string
	by   *Viewer
	feed *chat.Feed
	err  error
}

type feedEnded struct {
	conv string
	feed *chat.Feed
}

// Hub tracks open conversation views. One goroutine, Start, owns
// registration; each conversation with viewers holds one upstream feed,
// opened with one viewer's session. When that feed ends it is reopened with
// another viewer's session if there is one.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room

	RegisterChan   chan *Viewer
	UnregisterChan chan *Viewer
	changeChan     chan roomChange
	openedChan     chan feedOpened
	endedChan      chan feedEnded

	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:          map[string]*room{},
		RegisterChan:   make(chan *Viewer),
		UnregisterChan: make(chan *Viewer),
		changeChan:     make(chan roomChange),
		openedChan:     make(chan feedOpened),
		endedChan:      make(chan feedEnded),
		done:           make(chan struct{}),
	}
}

// Viewers is the number of open views of conv.
func (h *Hub) Viewers(conv string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[conv]; ok {
		return len(r.viewers)
	}
	return 0
}

// Watching reports whether conv has a live upstream feed.
func (h *Hub) Watching(conv string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[conv]
	return ok && r.feed != nil
}

// Register adds v; it returns false once the hub has stopped.
func (h *Hub) Register(v *Viewer) bool {
	select {
	case h.RegisterChan <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(v *Viewer) {
	select {
	case h.UnregisterChan <- v:
	case <-h.done:
	}
}

// Start runs the hub until ctx is done, then closes every feed and view.
func (h *Hub) Start(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case v := <-h.RegisterChan:
			h.mu.Lock()
			r := h.join(v)
			open := r.feed == nil && !r.opening
			if open {
				r.opening = true
			}
			h.mu.Unlock()
			jww.DEBUG.Printf("[live] %s viewing %s (%d open)", v.ID, v.Conv, h.Viewers(v.Conv))
			if open {
				go h.openFeed(ctx, v)
			}

		case v := <-h.UnregisterChan:
			h.mu.Lock()
			r, empty := h.leave(v)
			var feed *chat.Feed
			if empty {
				feed = r.feed
				r.feed = nil
			}
			h.mu.Unlock()
			v.close()
			if feed != nil {
				// leaving the upstream channel can wait on the network
				go feed.Close()
				jww.DEBUG.Printf("[live] closing feed of %s", v.Conv)
			}

		case o := <-h.openedChan:
			h.mu.Lock()
			r, ok := h.rooms[o.conv]
			keep := ok && o.err == nil && r.feed == nil
			var viewers []*Viewer
			if ok {
				r.opening = false
				viewers = r.snapshot()
			}
			if keep {
				r.feed = o.feed
				r.owner = o.by
			}
			h.mu.Unlock()
			switch {
			case o.err != nil:
				jww.WARN.Printf("[live] watch %s: %v", o.conv, o.err)
				for _, v := range viewers {
					v.push(errorFrame(o.err))
				}
			case !keep:
				// the room emptied or already has a feed
				go o.feed.Close()
			default:
				go h.pump(ctx, o.conv, o.feed)
			}

		case c := <-h.changeChan:
			h.mu.Lock()
			var viewers []*Viewer
			if r, ok := h.rooms[c.conv]; ok {
				r.reopens = 0
				viewers = r.snapshot()
			}
			h.mu.Unlock()
			for _, v := range viewers {
				v.push(changeFrame(c.change, v.svc.Me()))
				if c.change.Type == chat.ChangeInsert {
					go v.markRead(ctx)
				}
			}

		case e := <-h.endedChan:
			h.mu.Lock()
			var viewers []*Viewer
			var next *Viewer
			if r, ok := h.rooms[e.conv]; ok && r.feed == e.feed {
				viewers = r.snapshot()
				next = r.successor(r.owner)
				r.feed, r.owner = nil, nil
				if next != nil {
					r.opening = true
					r.reopens++
				}
			}
			h.mu.Unlock()
			if len(viewers) == 0 {
				break
			}
			err := e.feed.Err()
			if err == nil {
				err = ErrFeedStopped
			}
			if next != nil {
				jww.INFO.Printf("[live] feed of %s ended (%v), reopening for %s", e.conv, err, next.svc.Me())
				go h.openFeed(ctx, next)
				break
			}
			jww.WARN.Printf("[live] feed of %s ended: %v", e.conv, err)
			for _, v := range viewers {
				v.push(errorFrame(ErrFeedStopped))
			}
		}
	}
}

func (h *Hub) openFeed(ctx context.Context, by *Viewer) {
	feed, err := by.svc.Watch(ctx, by.Conv)
	select {
	case h.openedChan <- feedOpened{conv: by.Conv, by: by, feed: feed, err: err}:
	case <-ctx.Done():
		if feed != nil {
			feed.Close()
		}
	}
}

func (h *Hub) pump(ctx context.Context, conv string, feed *chat.Feed) {
	for ch := range feed.Changes() {
		select {
		case h.changeChan <- roomChange{conv: conv, change: ch}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case h.endedChan <- feedEnded{conv: conv, feed: feed}:
	case <-ctx.Done():
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conv, r := range h.rooms {
		if r.feed != nil {
			go r.feed.Close()
		}
		for v := range r.viewers {
			v.close()
		}
		delete(h.rooms, conv)
	}
	jww.INFO.Printf("[live] hub stopped")
}
