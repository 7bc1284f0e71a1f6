package chat_test

import (
	"context"
	"testing"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	creds    []backend.Credentials
	metadata map[string]interface{}
	err      error
}

func (a *fakeAuth) SignInWithPassword(ctx context.Context, cr backend.Credentials) (*backend.Session, error) {
	a.creds = append(a.creds, cr)
	if a.err != nil {
		return nil, a.err
	}
	return &backend.Session{AccessToken: "tok", User: backend.User{Email: cr.Email}}, nil
}

func (a *fakeAuth) SignUp(ctx context.Context, cr backend.Credentials, metadata map[string]interface{}) (*backend.SignUpResult, error) {
	a.creds = append(a.creds, cr)
	a.metadata = metadata
	if a.err != nil {
		return nil, a.err
	}
	return &backend.SignUpResult{User: backend.User{Email: cr.Email}}, nil
}

func TestSignUpValidatesBeforeCallingService(t *testing.T) {
	auth := &fakeAuth{}
	ctx := context.Background()

	_, err := chat.SignUp(ctx, auth, chat.SignUpForm{Email: "a@b.co", Password: "secret1", Username: "ab"})
	require.True(t, chat.IsValidation(err))
	require.Empty(t, auth.creds)

	res, err := chat.SignUp(ctx, auth, chat.SignUpForm{Email: " a@b.co ", Password: "secret1", Username: " alice "})
	require.NoError(t, err)
	require.Nil(t, res.Session)
	require.Equal(t, "a@b.co", auth.creds[0].Email)
	require.Equal(t, map[string]interface{}{"username": "alice"}, auth.metadata)
}

func TestSignInSurfacesServiceMessage(t *testing.T) {
	auth := &fakeAuth{err: &backend.ServiceError{Status: 400, Message: "Invalid login credentials"}}
	_, err := chat.SignIn(context.Background(), auth, chat.SignInForm{Email: "a@b.co", Password: "x"})
	require.EqualError(t, err, "sign in: Invalid login credentials")
	se, ok := backend.AsServiceError(err)
	require.True(t, ok)
	require.Equal(t, 400, se.Status)

	auth.err = nil
	s, err := chat.SignIn(context.Background(), auth, chat.SignInForm{Email: "  a@b.co ", Password: "x"})
	require.NoError(t, err)
	require.Equal(t, "tok", s.AccessToken)
	require.Equal(t, "a@b.co", auth.creds[len(auth.creds)-1].Email)
}
