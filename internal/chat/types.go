package chat

import (
	"time"
)

// Tables and procedures of the hosted service.
const (
	TableProfiles            = "profiles"
	TableConversations       = "conversations"
	TableConversationMembers = "conversation_members"
	TableMessages            = "messages"
	TableContacts            = "contacts"

	RPCFindOrCreateConversation = "find_or_create_conversation"
	RPCGetConversationPeer      = "get_conversation_peer"
	RPCAcceptContact            = "accept_contact"
)

type Profile struct {
	ID         string     `json:"id"`
	Username   *string    `json:"username"`
	FullName   *string    `json:"full_name,omitempty"`
	AvatarURL  *string    `json:"avatar_url"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// Message is a row of the messages table. DeliveredAt and ReadAt go from nil
// to set once and are never cleared.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	Type           string     `json:"type,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
	ReadAt         *time.Time `json:"read_at"`
}

type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
)

// Contact is a request from RequesterID to AddresseeID.
type Contact struct {
	ID          string        `json:"id"`
	RequesterID string        `json:"requester_id"`
	AddresseeID string        `json:"addressee_id"`
	Status      ContactStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ChangeType is the kind of live message change.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
)

// Change is one live message event of an open conversation.
type Change struct {
	Type    ChangeType `json:"type"`
	Message Message    `json:"message"`
}

func str(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
