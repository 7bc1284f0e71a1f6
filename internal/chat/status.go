package chat

// Status is the delivery progress of a message as seen by one viewer.
type Status string

const (
	// StatusNone is used for messages the viewer did not write.
	StatusNone      Status = ""
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// StatusOf derives the status of m for viewer. Read wins over delivered;
// messages from the peer never carry a status.
func StatusOf(m Message, viewer string) Status {
	if m.SenderID != viewer {
		return StatusNone
	}
	switch {
	case m.ReadAt != nil:
		return StatusRead
	case m.DeliveredAt != nil:
		return StatusDelivered
	default:
		return StatusSent
	}
}

// Mark is the tick shown next to the message; empty means none. Read and
// delivered share the double tick, read is drawn highlighted.
func (s Status) Mark() string {
	switch s {
	case StatusRead, StatusDelivered:
		return "✓✓"
	}
	return ""
}

// Highlighted reports whether the mark is drawn in the read colour.
func (s Status) Highlighted() bool { return s == StatusRead }

// MessageView is a message with its status as seen by one viewer.
type MessageView struct {
	Message
	Mine   bool   `json:"mine"`
	Status Status `json:"status"`
	Mark   string `json:"mark"`
}

func ViewOf(m Message, viewer string) MessageView {
	st := StatusOf(m, viewer)
	return MessageView{Message: m, Mine: m.SenderID == viewer, Status: st, Mark: st.Mark()}
}
