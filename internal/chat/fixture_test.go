package chat_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend/backendtest"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

// clock hands out strictly increasing times, one second apart.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	db           *backendtest.DB
	clock        *clock
	alice, bob   string
	conv         string
	aliceService *chat.Service
	bobService   *chat.Service
}

func sp(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    backendtest.New(),
		clock: &clock{t: base},
		alice: uuid.NewString(),
		bob:   uuid.NewString(),
	}
	f.db.Now = f.clock.Now
	f.db.Seed(chat.TableProfiles,
		chat.Profile{ID: f.alice, Username: sp("alice")},
		chat.Profile{ID: f.bob, Username: sp("bob")},
	)
	f.aliceService = f.service(f.alice)
	f.bobService = f.service(f.bob)

	conv, err := f.aliceService.StartConversation(context.Background(), f.bob)
	require.NoError(t, err)
	f.conv = conv
	return f
}

func (f *fixture) service(user string) *chat.Service {
	return chat.NewService(f.db.As(user), user, chat.WithClock(f.clock.Now))
}

// seedMessage stores a message sent at base plus offset.
func (f *fixture) seedMessage(conv, sender, body string, offset time.Duration) string {
	id := uuid.NewString()
	f.db.Seed(chat.TableMessages, chat.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Body:           body,
		Type:           "text",
		CreatedAt:      base.Add(offset),
	})
	return id
}

func (f *fixture) message(t *testing.T, id string) chat.Message {
	t.Helper()
	for _, r := range f.db.Rows(chat.TableMessages) {
		if r["id"] == id {
			var m chat.Message
			requireDecode(t, r, &m)
			return m
		}
	}
	t.Fatalf("message %s not found", id)
	return chat.Message{}
}

func requireDecode(t *testing.T, v interface{}, out interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}
