package chat

import (
	"strings"
	"time"
)

// DayLayout labels a day group.
const DayLayout = "Jan 2, 2006"

// DayGroup is a run of consecutive messages sent on the same calendar day.
type DayGroup struct {
	Day      string    `json:"day"`
	Date     time.Time `json:"date"` // midnight in the viewer's zone
	Messages []Message `json:"items"`
}

// FilterMessages keeps the messages whose body contains query, ignoring
// case. An empty query keeps everything.
func FilterMessages(msgs []Message, query string) []Message {
	if query == "" {
		return msgs
	}
	q := strings.ToLower(query)
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Body), q) {
			out = append(out, m)
		}
	}
	return out
}

// GroupByDay splits msgs into contiguous runs sharing the calendar day of
// CreatedAt in loc. Input order is kept, only the last group is ever looked
// at, so an out-of-order day starts a new group.
func GroupByDay(msgs []Message, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	var groups []DayGroup
	for _, m := range msgs {
		t := m.CreatedAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Day: day.Format(DayLayout), Date: day, Messages: []Message{m}})
	}
	return groups
}

// Search is the in-conversation search box.
type Search struct {
	Open  bool
	Query string
}

// Active reports whether the search narrows the list.
func (s Search) Active() bool { return s.Open && strings.TrimSpace(s.Query) != "" }

// GroupMessages applies s when active and groups the result by day.
func GroupMessages(msgs []Message, s Search, loc *time.Location) []DayGroup {
	if s.Active() {
		msgs = FilterMessages(msgs, s.Query)
	}
	return GroupByDay(msgs, loc)
}
