package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/backend/backendtest"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/live"
	"github.com/pelusa-v/wachat/internal/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

type testBackend struct {
	db        *backendtest.DB
	users     map[string]string // email -> id
	signedOut []string
	signedUp  map[string]interface{}
	revoked   map[string]bool // user id -> token no longer accepted
}

func (b *testBackend) SignInWithPassword(ctx context.Context, cr backend.Credentials) (*backend.Session, error) {
	id, ok := b.users[cr.Email]
	if !ok || cr.Password != "secret1" {
		return nil, &backend.ServiceError{Status: 400, Message: "Invalid login credentials"}
	}
	return &backend.Session{AccessToken: token(id, now.Add(time.Hour)), User: backend.User{ID: id, Email: cr.Email}}, nil
}

func (b *testBackend) SignUp(ctx context.Context, cr backend.Credentials, metadata map[string]interface{}) (*backend.SignUpResult, error) {
	b.signedUp = metadata
	return &backend.SignUpResult{User: backend.User{ID: uuid.NewString(), Email: cr.Email}}, nil
}

func (b *testBackend) SignOut(ctx context.Context, token string) error {
	b.signedOut = append(b.signedOut, token)
	return nil
}

func (b *testBackend) User(ctx context.Context, token string) (*backend.User, error) {
	claims, err := backend.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	if b.revoked[claims.UserID] {
		return nil, &backend.ServiceError{Status: 401, Message: "invalid JWT"}
	}
	return &backend.User{ID: claims.UserID, Email: claims.Email}, nil
}

func (b *testBackend) Store(token string) chat.Store {
	claims, _ := backend.ParseAccessToken(token)
	return b.db.As(claims.UserID)
}

func token(user string, exp time.Time) string {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user,
		"email": user[:4] + "@example.com",
		"exp":   exp.Unix(),
	})
	s, err := t.SignedString([]byte("test"))
	if err != nil {
		panic(err)
	}
	return s
}

type harness struct {
	app        *fiber.App
	backend    *testBackend
	ui         *state.Registry
	alice, bob string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := backendtest.New()
	db.Now = func() time.Time { return now }
	h := &harness{alice: uuid.NewString(), bob: uuid.NewString(), ui: state.NewRegistry()}
	alice, bob := "alice", "bob"
	db.Seed(chat.TableProfiles, chat.Profile{ID: h.alice, Username: &alice}, chat.Profile{ID: h.bob, Username: &bob})
	h.backend = &testBackend{db: db, users: map[string]string{"alice@example.com": h.alice}, revoked: map[string]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := live.NewHub()
	go hub.Start(ctx)

	srv := NewServer(h.backend, hub, h.ui, Config{Location: time.UTC, Now: func() time.Time { return now }})
	h.app = fiber.New()
	srv.Routes(h.app)
	return h
}

// call runs one request as user ("" for none) and decodes a JSON reply
// into out when given.
func (h *harness) call(t *testing.T, user, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(user, now.Add(time.Hour)))
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

type errBody struct {
	Error string `json:"error"`
}

func TestRequireSession(t *testing.T) {
	h := newHarness(t)
	var e errBody
	require.Equal(t, 401, h.call(t, "", "GET", "/api/ui", nil, &e))

	req := httptest.NewRequest("GET", "/api/ui", nil)
	req.Header.Set("Authorization", "Bearer "+token(h.alice, now.Add(-time.Minute)))
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/ui?access_token="+token(h.alice, now.Add(time.Minute)), nil)
	resp, err = h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestLoginAndSignUp(t *testing.T) {
	h := newHarness(t)
	var e errBody
	require.Equal(t, 400, h.call(t, "", "POST", "/api/auth/login",
		chat.SignInForm{Email: "alice@example.com", Password: "wrong"}, &e))
	require.Equal(t, "Invalid login credentials", e.Error)

	var session backend.Session
	require.Equal(t, 200, h.call(t, "", "POST", "/api/auth/login",
		chat.SignInForm{Email: "alice@example.com", Password: "secret1"}, &session))
	require.NotEmpty(t, session.AccessToken)

	require.Equal(t, 400, h.call(t, "", "POST", "/api/auth/signup",
		chat.SignUpForm{Email: "c@example.com", Password: "secret1", Username: "AB3de"}, &e))
	require.Equal(t, chat.ErrInvalidUsername.Error(), e.Error)
	require.Nil(t, h.backend.signedUp)

	var created struct {
		Session *backend.Session `json:"session"`
	}
	require.Equal(t, 201, h.call(t, "", "POST", "/api/auth/signup",
		chat.SignUpForm{Email: "c@example.com", Password: "secret1", Username: "carol"}, &created))
	require.Nil(t, created.Session)
	require.Equal(t, "carol", h.backend.signedUp["username"])
}

func TestLogoutDropsUIState(t *testing.T) {
	h := newHarness(t)
	h.ui.Get(h.alice).Set(state.Patch{ComposerText: strp("draft")})

	require.Equal(t, 204, h.call(t, h.alice, "POST", "/api/auth/logout", nil, nil))
	require.Len(t, h.backend.signedOut, 1)
	require.Empty(t, h.ui.Get(h.alice).View().ComposerText)
}

func TestSessionComesFromService(t *testing.T) {
	h := newHarness(t)
	var got struct {
		UserID  string        `json:"user_id"`
		Email   string        `json:"email"`
		Profile *chat.Profile `json:"profile"`
	}
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/auth/session", nil, &got))
	require.Equal(t, h.alice, got.UserID)
	require.Equal(t, h.alice[:4]+"@example.com", got.Email)
	require.Equal(t, "alice", *got.Profile.Username)

	h.backend.revoked[h.alice] = true
	var e errBody
	require.Equal(t, 401, h.call(t, h.alice, "GET", "/api/auth/session", nil, &e))
	require.Equal(t, "invalid JWT", e.Error)
}

type openReply struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Presence string `json:"presence"`
	Groups   []struct {
		Day   string             `json:"day"`
		Items []chat.MessageView `json:"items"`
	} `json:"groups"`
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	var created struct {
		ID string `json:"id"`
	}
	require.Equal(t, 201, h.call(t, h.alice, "POST", "/api/conversations", fiber.Map{"user_id": h.bob}, &created))
	return created.ID
}

func TestConversationFlow(t *testing.T) {
	h := newHarness(t)
	conv := h.start(t)

	var sent chat.MessageView
	require.Equal(t, 201, h.call(t, h.bob, "POST", "/api/conversations/"+conv+"/messages", bodyInput{Body: " Hello Alice "}, &sent))
	require.Equal(t, "Hello Alice", sent.Body)
	require.Equal(t, chat.StatusSent, sent.Status)
	require.True(t, sent.Mine)

	var open openReply
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/conversations/"+conv, nil, &open))
	require.Equal(t, "bob", open.Title)
	require.Equal(t, "online", open.Presence)
	require.Len(t, open.Groups, 1)
	require.Equal(t, "Mar 9, 2024", open.Groups[0].Day)
	require.Len(t, open.Groups[0].Items, 1)
	require.False(t, open.Groups[0].Items[0].Mine)
	require.Equal(t, chat.StatusNone, open.Groups[0].Items[0].Status)

	require.Equal(t, 200, h.call(t, h.bob, "GET", "/api/conversations/"+conv, nil, &open))
	require.Equal(t, chat.StatusRead, open.Groups[0].Items[0].Status)
	require.Equal(t, "✓✓", open.Groups[0].Items[0].Mark)

	// the open search narrows the history
	h.ui.Get(h.bob).Set(state.Patch{ChatSearchOpen: boolp(true), ChatSearchQuery: strp("nothing like it")})
	require.Equal(t, 200, h.call(t, h.bob, "GET", "/api/conversations/"+conv, nil, &open))
	require.Empty(t, open.Groups)
	h.ui.Get(h.bob).Set(state.Patch{ChatSearchQuery: strp("HELLO")})
	require.Equal(t, 200, h.call(t, h.bob, "GET", "/api/conversations/"+conv, nil, &open))
	require.Len(t, open.Groups, 1)

	require.Equal(t, 204, h.call(t, h.bob, "PATCH", "/api/messages/"+sent.ID, bodyInput{Body: "Hi Alice"}, nil))
	require.Equal(t, 204, h.call(t, h.bob, "POST", "/api/conversations/"+conv+"/read", nil, nil))
	require.Equal(t, 204, h.call(t, h.bob, "DELETE", "/api/messages/"+sent.ID, nil, nil))
	require.Empty(t, h.backend.db.Rows(chat.TableMessages))
}

func TestConversationErrors(t *testing.T) {
	h := newHarness(t)
	conv := h.start(t)
	var e errBody

	require.Equal(t, 400, h.call(t, h.alice, "GET", "/api/conversations/nope", nil, &e))
	require.Equal(t, 400, h.call(t, h.alice, "GET", "/api/conversations/"+conv+"?tz=Mars/Base", nil, &e))
	require.Equal(t, 404, h.call(t, uuid.NewString(), "GET", "/api/conversations/"+conv, nil, &e))
	require.Equal(t, 400, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/messages", bodyInput{Body: "  "}, &e))
	require.Equal(t, chat.ErrEmptyBody.Error(), e.Error)
	require.Equal(t, 400, h.call(t, h.alice, "POST", "/api/conversations", fiber.Map{"user_id": h.alice}, &e))

	h.backend.db.Fail("select", chat.TableMessages, &backend.ServiceError{Status: 500, Message: "db down"})
	require.Equal(t, 502, h.call(t, h.alice, "GET", "/api/conversations/"+conv, nil, &e))
	require.Equal(t, "db down", e.Error)
}

func TestComposeSendsThenEdits(t *testing.T) {
	h := newHarness(t)
	conv := h.start(t)

	var v state.View
	require.Equal(t, 200, h.call(t, h.alice, "PATCH", "/api/ui", fiber.Map{"composer_text": "hi bob"}, &v))
	require.Equal(t, 200, h.call(t, h.alice, "POST", "/api/ui/emoji", fiber.Map{"emoji": "👋"}, &v))
	require.Equal(t, "hi bob👋", v.ComposerText)

	var sent struct {
		Message chat.MessageView `json:"message"`
		UI      state.View       `json:"ui"`
	}
	require.Equal(t, 201, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/compose", nil, &sent))
	require.Equal(t, "hi bob👋", sent.Message.Body)
	require.Equal(t, state.View{}, sent.UI)

	require.Equal(t, 200, h.call(t, h.alice, "PATCH", "/api/ui",
		fiber.Map{"editing_message_id": sent.Message.ID, "composer_text": "hello bob"}, &v))
	var edited struct {
		Edited string     `json:"edited"`
		UI     state.View `json:"ui"`
	}
	require.Equal(t, 200, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/compose", nil, &edited))
	require.Equal(t, sent.Message.ID, edited.Edited)
	rows := h.backend.db.Rows(chat.TableMessages)
	require.Equal(t, "hello bob", rows[0]["body"])

	var e errBody
	require.Equal(t, 400, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/compose", nil, &e))
	require.Equal(t, 400, h.call(t, h.alice, "POST", "/api/ui/emoji", fiber.Map{"emoji": "xy"}, &e))
}

func TestBeginEditAndReply(t *testing.T) {
	h := newHarness(t)
	conv := h.start(t)
	var mine, theirs chat.MessageView
	require.Equal(t, 201, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/messages", bodyInput{Body: "see you at 7"}, &mine))
	require.Equal(t, 201, h.call(t, h.bob, "POST", "/api/conversations/"+conv+"/messages", bodyInput{Body: "ok"}, &theirs))

	var v state.View
	require.Equal(t, 200, h.call(t, h.alice, "POST", "/api/messages/"+theirs.ID+"/reply", nil, &v))
	require.Equal(t, theirs.ID, v.ReplyingToMessageID)

	require.Equal(t, 200, h.call(t, h.alice, "POST", "/api/messages/"+mine.ID+"/edit", nil, &v))
	require.Equal(t, mine.ID, v.EditingMessageID)
	require.Equal(t, "see you at 7", v.ComposerText)
	require.Empty(t, v.ReplyingToMessageID)

	// the composer now edits instead of sending
	require.Equal(t, 200, h.call(t, h.alice, "PATCH", "/api/ui", fiber.Map{"composer_text": "see you at 8"}, &v))
	require.Equal(t, 200, h.call(t, h.alice, "POST", "/api/conversations/"+conv+"/compose", nil, nil))
	m, err := chat.NewService(h.backend.db.As(h.alice), h.alice).Message(context.Background(), mine.ID)
	require.NoError(t, err)
	require.Equal(t, "see you at 8", m.Body)

	var e errBody
	require.Equal(t, 404, h.call(t, h.alice, "POST", "/api/messages/"+theirs.ID+"/edit", nil, &e))
	require.Equal(t, chat.ErrNoMessage.Error(), e.Error)
	require.Equal(t, 404, h.call(t, h.alice, "POST", "/api/messages/"+uuid.NewString()+"/reply", nil, &e))
	require.Equal(t, 400, h.call(t, h.alice, "POST", "/api/messages/nope/edit", nil, &e))
}

func TestThreadsUseSidebarState(t *testing.T) {
	h := newHarness(t)
	conv := h.start(t)
	require.Equal(t, 201, h.call(t, h.bob, "POST", "/api/conversations/"+conv+"/messages", bodyInput{Body: "lunch?"}, nil))

	var list []chat.ThreadPreview
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/threads", nil, &list))
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].Unread)
	require.Equal(t, "lunch?", list[0].LastBody)

	h.ui.Get(h.alice).Set(state.Patch{SidebarQuery: strp("dinner")})
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/threads", nil, &list))
	require.Empty(t, list)
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/threads?q=BOB&unread=true", nil, &list))
	require.Len(t, list, 1)
}

func TestContactsFlow(t *testing.T) {
	h := newHarness(t)
	var req chat.Contact
	require.Equal(t, 201, h.call(t, h.alice, "POST", "/api/contacts", fiber.Map{"user_id": h.bob}, &req))

	var incoming []chat.Request
	require.Equal(t, 200, h.call(t, h.bob, "GET", "/api/contacts/requests", nil, &incoming))
	require.Len(t, incoming, 1)
	require.Equal(t, "alice", *incoming[0].Requester.Username)

	require.Equal(t, 204, h.call(t, h.bob, "POST", "/api/contacts/"+req.ID+"/accept", nil, nil))
	var friends []chat.Friend
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/contacts", nil, &friends))
	require.Len(t, friends, 1)
	require.Equal(t, h.bob, friends[0].UserID)

	var found []chat.Profile
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/profiles/search?q=BO", nil, &found))
	require.Len(t, found, 1)
}

func TestProfileAndEmoji(t *testing.T) {
	h := newHarness(t)
	var e errBody
	require.Equal(t, 400, h.call(t, h.alice, "PUT", "/api/profile", chat.ProfileForm{Username: "ab"}, &e))

	var p chat.Profile
	require.Equal(t, 200, h.call(t, h.alice, "PUT", "/api/profile", chat.ProfileForm{Username: "alice_2"}, &p))
	require.Equal(t, "alice_2", *p.Username)
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/profile", nil, &p))
	require.Equal(t, "alice_2", *p.Username)
	require.Equal(t, 404, h.call(t, uuid.NewString(), "GET", "/api/profile", nil, &e))

	var emojis []string
	require.Equal(t, 200, h.call(t, h.alice, "GET", "/api/emoji", nil, &emojis))
	require.Equal(t, chat.PickerEmojis, emojis)
}

func TestSocketNeedsUpgrade(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, fiber.StatusUpgradeRequired, h.call(t, h.alice, "GET", "/api/ws/conversations/"+uuid.NewString(), nil, nil))
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{&chat.ValidationError{Field: "username", Message: "bad"}, 400, "bad"},
		{errors.Wrap(chat.ErrEmptyBody, "send"), 400, chat.ErrEmptyBody.Error()},
		{chat.ErrNotMember, 404, chat.ErrNotMember.Error()},
		{errors.Wrap(chat.ErrNoMessage, "edit"), 404, "edit: " + chat.ErrNoMessage.Error()},
		{backend.ErrNoSession, 401, backend.ErrNoSession.Error()},
		{errors.Wrap(&backend.ServiceError{Status: 409, Message: "duplicate key"}, "send"), 409, "duplicate key"},
		{&backend.ServiceError{Status: 503, Message: "unavailable"}, 502, "unavailable"},
		{errors.New("dial tcp: refused"), 502, "dial tcp: refused"},
	}
	for _, tc := range cases {
		code, msg := statusOf(tc.err)
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Equal(t, tc.msg, msg)
	}
}

func strp(s string) *string { return &s }

func boolp(b bool) *bool { return &b }
