package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/stretchr/testify/require"
)

func TestOpenChatLoadsHistoryAndMarksPeerMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.seedMessage(f.conv, f.bob, "second", 2*time.Minute)
	early := f.seedMessage(f.conv, f.bob, "first", time.Minute)
	mine := f.seedMessage(f.conv, f.alice, "mine", 3*time.Minute)

	c, err := f.aliceService.OpenChat(ctx, f.conv)
	require.NoError(t, err)
	require.Equal(t, f.bob, c.PeerID)
	require.Equal(t, "bob", c.Title())
	require.Len(t, c.Messages, 3)
	require.Equal(t, []string{early, late, mine}, []string{c.Messages[0].ID, c.Messages[1].ID, c.Messages[2].ID})

	for _, id := range []string{early, late} {
		m := f.message(t, id)
		require.NotNil(t, m.DeliveredAt)
		require.NotNil(t, m.ReadAt)
	}
	own := f.message(t, mine)
	require.Nil(t, own.DeliveredAt)
	require.Nil(t, own.ReadAt)
}

func TestOpenChatHistoryLimit(t *testing.T) {
	f := newFixture(t)
	for i, body := range []string{"m0", "m1", "m2", "m3", "m4"} {
		f.seedMessage(f.conv, f.bob, body, time.Duration(i)*time.Minute)
	}
	svc := chat.NewService(f.db.As(f.alice), f.alice, chat.WithHistoryLimit(3))
	c, err := svc.OpenChat(context.Background(), f.conv)
	require.NoError(t, err)
	require.Len(t, c.Messages, 3)
	// the oldest messages, in send order
	require.Equal(t, []string{"m0", "m1", "m2"}, []string{c.Messages[0].Body, c.Messages[1].Body, c.Messages[2].Body})
}

func TestOpenChatNotMember(t *testing.T) {
	f := newFixture(t)
	carol := uuid.NewString()
	_, err := f.service(carol).OpenChat(context.Background(), f.conv)
	require.ErrorIs(t, err, chat.ErrNotMember)

	_, err = chat.NewService(f.db.As(""), "").OpenChat(context.Background(), f.conv)
	require.ErrorIs(t, err, chat.ErrNotSignedIn)
}

func TestMarkDeliveredReadRunsTwoUpdatesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMessage(f.conv, f.bob, "hi", 0)

	require.NoError(t, f.aliceService.MarkDeliveredRead(ctx, f.conv))
	first := f.message(t, id)
	require.NoError(t, f.aliceService.MarkDeliveredRead(ctx, f.conv))
	second := f.message(t, id)
	require.True(t, first.ReadAt.Equal(*second.ReadAt))
	require.True(t, first.DeliveredAt.Equal(*second.DeliveredAt))

	var cols []string
	for _, c := range f.db.Calls() {
		if c.Op != "update" {
			continue
		}
		for k := range c.Body {
			cols = append(cols, k)
		}
		filters := c.Query.Filters()
		require.Len(t, filters, 3)
		require.Equal(t, backend.Filter{Column: "sender_id", Op: backend.OpNeq, Value: f.alice}, filters[1])
		require.Equal(t, backend.OpIs, filters[2].Op)
	}
	require.Equal(t, []string{"delivered_at", "read_at", "delivered_at", "read_at"}, cols)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.aliceService.SendMessage(ctx, f.conv, "   ")
	require.ErrorIs(t, err, chat.ErrEmptyBody)

	m, err := f.aliceService.SendMessage(ctx, f.conv, "  hello  ")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "hello", m.Body)
	require.Equal(t, "text", m.Type)
	require.Equal(t, chat.StatusSent, chat.StatusOf(*m, f.alice))
	require.Equal(t, chat.StatusNone, chat.StatusOf(*m, f.bob))

	_, err = f.bobService.OpenChat(ctx, f.conv)
	require.NoError(t, err)
	require.Equal(t, chat.StatusRead, chat.StatusOf(f.message(t, m.ID), f.alice))
}

func TestEditAndDeleteOnlyOwnMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.seedMessage(f.conv, f.alice, "typo", 0)
	theirs := f.seedMessage(f.conv, f.bob, "original", time.Second)

	require.ErrorIs(t, f.aliceService.EditMessage(ctx, mine, " "), chat.ErrEmptyBody)
	require.NoError(t, f.aliceService.EditMessage(ctx, mine, "fixed"))
	require.NoError(t, f.aliceService.EditMessage(ctx, theirs, "hijack"))
	require.Equal(t, "fixed", f.message(t, mine).Body)
	require.Equal(t, "original", f.message(t, theirs).Body)

	require.NoError(t, f.aliceService.DeleteMessage(ctx, theirs))
	require.NoError(t, f.aliceService.DeleteMessage(ctx, mine))
	rows := f.db.Rows(chat.TableMessages)
	require.Len(t, rows, 1)
	require.Equal(t, theirs, rows[0]["id"])
}

func TestMessageLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.seedMessage(f.conv, f.alice, "mine", 0)
	theirs := f.seedMessage(f.conv, f.bob, "theirs", time.Second)

	m, err := f.aliceService.Message(ctx, theirs)
	require.NoError(t, err)
	require.Equal(t, "theirs", m.Body)

	m, err = f.aliceService.OwnMessage(ctx, mine)
	require.NoError(t, err)
	require.Equal(t, "mine", m.Body)

	_, err = f.aliceService.OwnMessage(ctx, theirs)
	require.ErrorIs(t, err, chat.ErrNoMessage)
	_, err = f.aliceService.Message(ctx, uuid.NewString())
	require.ErrorIs(t, err, chat.ErrNoMessage)
}

func recv(t *testing.T, feed *chat.Feed) chat.Change {
	t.Helper()
	select {
	case ch, ok := <-feed.Changes():
		require.True(t, ok, "feed closed")
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("no change")
	}
	return chat.Change{}
}

func TestWatchStreamsInsertsAndUpdates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := f.aliceService.OpenChat(ctx, f.conv)
	require.NoError(t, err)
	feed, err := f.aliceService.Watch(ctx, f.conv)
	require.NoError(t, err)
	defer feed.Close()

	other, err := f.bobService.StartConversation(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = f.bobService.SendMessage(ctx, other, "elsewhere")
	require.NoError(t, err)

	sent, err := f.aliceService.SendMessage(ctx, f.conv, "ping")
	require.NoError(t, err)
	ch := recv(t, feed)
	require.Equal(t, chat.ChangeInsert, ch.Type)
	require.Equal(t, "ping", ch.Message.Body)
	c.Apply(ch)
	require.Len(t, c.Messages, 1)

	_, err = f.bobService.OpenChat(ctx, f.conv)
	require.NoError(t, err)
	ch = recv(t, feed)
	require.Equal(t, chat.ChangeUpdate, ch.Type)
	require.Equal(t, sent.ID, ch.Message.ID)
	c.Apply(ch)
	require.Equal(t, chat.StatusDelivered, chat.StatusOf(c.Messages[0], f.alice))

	c.Apply(recv(t, feed))
	require.Equal(t, chat.StatusRead, chat.StatusOf(c.Messages[0], f.alice))

	feed.Close()
	require.Eventually(t, func() bool {
		_, ok := <-feed.Changes()
		return !ok
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, feed.Err())
}

func TestChatApplyUpdateUnknownIDIsIgnored(t *testing.T) {
	c := &chat.Chat{Messages: []chat.Message{{ID: "a", Body: "x"}}}
	c.Apply(chat.Change{Type: chat.ChangeUpdate, Message: chat.Message{ID: "b", Body: "y"}})
	require.Equal(t, []chat.Message{{ID: "a", Body: "x"}}, c.Messages)
}

func TestPresenceAndInitial(t *testing.T) {
	seen := time.Date(2024, 1, 1, 14, 5, 0, 0, time.UTC)
	p := &chat.Profile{Username: sp("bob"), LastSeenAt: &seen}
	require.Equal(t, "last seen 14:05", chat.Presence(p, time.UTC))
	require.Equal(t, "online", chat.Presence(&chat.Profile{}, time.UTC))
	require.Equal(t, "B", chat.Initial(p))
	require.Equal(t, "C", chat.Initial(nil))
	require.Equal(t, "Chat", chat.PeerTitle(nil))
}
