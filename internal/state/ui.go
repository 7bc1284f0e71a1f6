// Package state keeps the per-user screen state that the browser shell and
// the live socket share: overlays, composer, search boxes.
package state

import (
	"sync"

	"github.com/pelusa-v/wachat/internal/chat"
)

// View is a snapshot of a user's screen state.
type View struct {
	ShowStatusOverlay   bool   `json:"show_status_overlay"`
	ShowNewChatOverlay  bool   `json:"show_new_chat_overlay"`
	ShowMenuDropdown    bool   `json:"show_menu_dropdown"`
	ShowContactInfo     bool   `json:"show_contact_info"`
	ChatSearchOpen      bool   `json:"chat_search_open"`
	ChatSearchQuery     string `json:"chat_search_query"`
	ComposerText        string `json:"composer_text"`
	EditingMessageID    string `json:"editing_message_id"`
	ReplyingToMessageID string `json:"replying_to_message_id"`
	SidebarQuery        string `json:"sidebar_query"`
	UnreadOnly          bool   `json:"unread_only"`
}

// Patch sets the non-nil fields.
type Patch struct {
	ShowStatusOverlay   *bool   `json:"show_status_overlay"`
	ShowNewChatOverlay  *bool   `json:"show_new_chat_overlay"`
	ShowMenuDropdown    *bool   `json:"show_menu_dropdown"`
	ShowContactInfo     *bool   `json:"show_contact_info"`
	ChatSearchOpen      *bool   `json:"chat_search_open"`
	ChatSearchQuery     *string `json:"chat_search_query"`
	ComposerText        *string `json:"composer_text"`
	EditingMessageID    *string `json:"editing_message_id"`
	ReplyingToMessageID *string `json:"replying_to_message_id"`
	SidebarQuery        *string `json:"sidebar_query"`
	UnreadOnly          *bool   `json:"unread_only"`
}

// UI is one user's screen state, safe for concurrent use.
type UI struct {
	mu sync.Mutex
	v  View
}

func (u *UI) View() View {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.v
}

// Set applies p and returns the result.
func (u *UI) Set(p Patch) View {
	u.mu.Lock()
	defer u.mu.Unlock()
	setBool(&u.v.ShowStatusOverlay, p.ShowStatusOverlay)
	setBool(&u.v.ShowNewChatOverlay, p.ShowNewChatOverlay)
	setBool(&u.v.ShowMenuDropdown, p.ShowMenuDropdown)
	setBool(&u.v.ShowContactInfo, p.ShowContactInfo)
	setBool(&u.v.ChatSearchOpen, p.ChatSearchOpen)
	setString(&u.v.ChatSearchQuery, p.ChatSearchQuery)
	setString(&u.v.ComposerText, p.ComposerText)
	setString(&u.v.EditingMessageID, p.EditingMessageID)
	setString(&u.v.ReplyingToMessageID, p.ReplyingToMessageID)
	setString(&u.v.SidebarQuery, p.SidebarQuery)
	setBool(&u.v.UnreadOnly, p.UnreadOnly)
	return u.v
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ResetComposer clears the text and the edit and reply markers.
func (u *UI) ResetComposer() View {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.v.ComposerText = ""
	u.v.EditingMessageID = ""
	u.v.ReplyingToMessageID = ""
	return u.v
}

// BeginEdit loads m into the composer in edit mode.
func (u *UI) BeginEdit(m chat.Message) View {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.v.EditingMessageID = m.ID
	u.v.ComposerText = m.Body
	u.v.ReplyingToMessageID = ""
	return u.v
}

func (u *UI) BeginReply(id string) View {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.v.ReplyingToMessageID = id
	u.v.EditingMessageID = ""
	return u.v
}

// AddEmoji appends a picked emoji to the composer.
func (u *UI) AddEmoji(e string) (View, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	text, err := chat.AppendEmoji(u.v.ComposerText, e)
	if err != nil {
		return u.v, err
	}
	u.v.ComposerText = text
	return u.v, nil
}

// Search is the in-conversation search box.
func (v View) Search() chat.Search {
	return chat.Search{Open: v.ChatSearchOpen, Query: v.ChatSearchQuery}
}

// ThreadFilter is the sidebar filter.
func (v View) ThreadFilter() chat.ThreadFilter {
	return chat.ThreadFilter{Query: v.SidebarQuery, UnreadOnly: v.UnreadOnly}
}

// Registry holds the UI of every signed-in user.
type Registry struct {
	mu    sync.Mutex
	users map[string]*UI
}

func NewRegistry() *Registry {
	return &Registry{users: map[string]*UI{}}
}

// Get returns the user's UI, creating an empty one on first use.
func (r *Registry) Get(user string) *UI {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[user]
	if !ok {
		u = &UI{}
		r.users[user] = u
	}
	return u
}

// Drop forgets the user's UI, on sign-out.
func (r *Registry) Drop(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, user)
}
