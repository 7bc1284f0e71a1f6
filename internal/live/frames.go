package live

import (
	"encoding/json"

	"github.com/pelusa-v/wachat/internal/chat"
)

// Frame types on the conversation socket.
const (
	FrameInsert        = "insert"
	FrameUpdate        = "update"
	FrameSearchResults = "search_results"
	FrameError         = "error"

	FrameSend   = "send"
	FrameSearch = "search"
)

// Inbound is a frame from the browser.
type Inbound struct {
	Type  string `json:"type"`
	Body  string `json:"body,omitempty"`
	Query string `json:"query,omitempty"`
}

// Outbound is a frame to the browser.
type Outbound struct {
	Type     string            `json:"type"`
	Message  *chat.MessageView `json:"message,omitempty"`
	Profiles []chat.Profile    `json:"profiles,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func changeFrame(ch chat.Change, viewer string) []byte {
	mv := chat.ViewOf(ch.Message, viewer)
	return encode(Outbound{Type: string(ch.Type), Message: &mv})
}

func errorFrame(err error) []byte {
	return encode(Outbound{Type: FrameError, Error: err.Error()})
}

func searchFrame(profiles []chat.Profile) []byte {
	if profiles == nil {
		profiles = []chat.Profile{}
	}
	return encode(struct {
		Type     string         `json:"type"`
		Profiles []chat.Profile `json:"profiles"`
	}{FrameSearchResults, profiles})
}

func encode(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
