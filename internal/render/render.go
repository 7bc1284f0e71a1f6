// Package render draws threads and conversations for the terminal client.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pelusa-v/wachat/internal/chat"
)

var (
	primaryColor = lipgloss.Color("#25D366")
	readColor    = lipgloss.Color("#53BDEB")
	mutedColor   = lipgloss.Color("#9CA3AF")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	dayStyle    = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1).Border(lipgloss.NormalBorder(), false, false, true, false)
	ownStyle    = lipgloss.NewStyle().Foreground(primaryColor)
	peerStyle   = lipgloss.NewStyle()
	readStyle   = lipgloss.NewStyle().Foreground(readColor)
	unreadStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(primaryColor).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor).Padding(0, 1)
)

const banner = "Messages are end-to-end encrypted."

// Threads prints the sidebar.
func Threads(w io.Writer, list []*chat.ThreadPreview, loc *time.Location) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No chats yet."))
		return
	}
	for _, p := range list {
		when := ""
		if p.LastAt != nil {
			when = p.LastAt.In(loc).Format("Jan 2 15:04")
		}
		line := titleStyle.Render(p.Title) + "  " + mutedStyle.Render(when)
		if p.Unread > 0 {
			line += " " + unreadStyle.Render(fmt.Sprint(p.Unread))
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(oneLine(p.LastBody)))
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(p.ConversationID))
	}
}

// Chat prints the header and the day-grouped history of c.
func Chat(w io.Writer, c *chat.Chat, me string, s chat.Search, loc *time.Location) {
	header := titleStyle.Render(chat.Initial(c.Peer)+"  "+c.Title()) + "\n" + mutedStyle.Render(chat.Presence(c.Peer, loc))
	fmt.Fprintln(w, headerStyle.Render(header))
	fmt.Fprintln(w, mutedStyle.Render(banner))
	groups := c.Groups(s, loc)
	if len(groups) == 0 && s.Active() {
		fmt.Fprintln(w, mutedStyle.Render("No messages match "+fmt.Sprintf("%q", s.Query)+"."))
	}
	for _, g := range groups {
		fmt.Fprintln(w, dayStyle.Render(g.Day))
		for _, m := range g.Messages {
			fmt.Fprintln(w, Message(m, me, loc))
		}
	}
}

// Message is one history line: time, author marker, body and status mark.
func Message(m chat.Message, me string, loc *time.Location) string {
	v := chat.ViewOf(m, me)
	ts := mutedStyle.Render(m.CreatedAt.In(loc).Format("15:04"))
	if !v.Mine {
		return ts + " " + peerStyle.Render("< "+m.Body)
	}
	line := ts + " " + ownStyle.Render("> "+m.Body)
	switch {
	case v.Status.Highlighted():
		line += " " + readStyle.Render(v.Mark)
	case v.Mark != "":
		line += " " + mutedStyle.Render(v.Mark)
	}
	return line
}

// Profiles prints a user search result or contact list.
func Profiles(w io.Writer, ps []chat.Profile) {
	if len(ps) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No users found."))
		return
	}
	for i := range ps {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(chat.PeerTitle(&ps[i])), mutedStyle.Render(ps[i].ID))
	}
}

func Requests(w io.Writer, reqs []chat.Request) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No pending requests."))
		return
	}
	for _, r := range reqs {
		fmt.Fprintf(w, "%s wants to connect  %s\n", titleStyle.Render(chat.PeerTitle(r.Requester)), mutedStyle.Render(r.ID))
	}
}

func Friends(w io.Writer, friends []chat.Friend) {
	if len(friends) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No contacts yet."))
		return
	}
	for _, f := range friends {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(chat.PeerTitle(f.Profile)), mutedStyle.Render(f.UserID))
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:59]) + "…"
	}
	return s
}
