package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestListThreads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := uuid.NewString()
	f.db.Seed(chat.TableProfiles, chat.Profile{ID: carol, Username: sp("carol")})
	withCarol, err := f.aliceService.StartConversation(ctx, carol)
	require.NoError(t, err)
	quiet, err := f.aliceService.StartConversation(ctx, uuid.NewString())
	require.NoError(t, err)

	// a conversation where alice is the only member has no peer
	f.db.Seed(chat.TableConversationMembers, chat.Member{ConversationID: "lonely", UserID: f.alice})

	f.seedMessage(f.conv, f.bob, "old", time.Minute)
	f.seedMessage(withCarol, carol, "one", 2*time.Minute)
	f.seedMessage(withCarol, carol, "two", 3*time.Minute)
	f.seedMessage(withCarol, f.alice, "mine", 4*time.Minute)

	list, err := f.aliceService.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.Equal(t, withCarol, list[0].ConversationID)
	require.Equal(t, "carol", list[0].Title)
	require.Equal(t, "mine", list[0].LastBody)
	require.Equal(t, 2, list[0].Unread)

	require.Equal(t, f.conv, list[1].ConversationID)
	require.Equal(t, 1, list[1].Unread)

	require.Equal(t, quiet, list[2].ConversationID)
	require.Nil(t, list[2].LastAt)
	require.Nil(t, list[2].Peer)
	require.Equal(t, "Chat", list[2].Title)

	_, err = f.aliceService.OpenChat(ctx, withCarol)
	require.NoError(t, err)
	list, err = f.aliceService.ListThreads(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, list[0].Unread)
}

func TestListThreadsSurfacesServiceError(t *testing.T) {
	f := newFixture(t)
	f.db.Fail("count", chat.TableMessages, errors.New("boom"))
	_, err := f.aliceService.ListThreads(context.Background())
	require.EqualError(t, err, "unread count: boom")
}

func TestFilterThreads(t *testing.T) {
	list := []*chat.ThreadPreview{
		{ConversationID: "1", Peer: &chat.Profile{Username: sp("Bob")}, LastBody: "see you", Unread: 0},
		{ConversationID: "2", Peer: &chat.Profile{Username: sp("carol")}, LastBody: "Lunch?", Unread: 3},
		{ConversationID: "3", LastBody: "hi bob", Unread: 1},
	}
	ids := func(ps []*chat.ThreadPreview) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ConversationID)
		}
		return out
	}

	require.Equal(t, []string{"1", "2", "3"}, ids(chat.FilterThreads(list, chat.ThreadFilter{})))
	require.Equal(t, []string{"1", "3"}, ids(chat.FilterThreads(list, chat.ThreadFilter{Query: "BOB"})))
	require.Equal(t, []string{"2"}, ids(chat.FilterThreads(list, chat.ThreadFilter{Query: "lunch"})))
	require.Equal(t, []string{"2", "3"}, ids(chat.FilterThreads(list, chat.ThreadFilter{UnreadOnly: true})))
	require.Equal(t, []string{"3"}, ids(chat.FilterThreads(list, chat.ThreadFilter{Query: "bob", UnreadOnly: true})))
}
