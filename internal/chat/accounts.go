package chat

import (
	"context"
	"strings"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
)

// Authenticator is the password auth of the hosted service.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, cr backend.Credentials) (*backend.Session, error)
	SignUp(ctx context.Context, cr backend.Credentials, metadata map[string]interface{}) (*backend.SignUpResult, error)
}

// SignIn checks the form and signs in with email and password.
func SignIn(ctx context.Context, auth Authenticator, form SignInForm) (*backend.Session, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := Validate(form); err != nil {
		return nil, err
	}
	s, err := auth.SignInWithPassword(ctx, backend.Credentials{Email: form.Email, Password: form.Password})
	if err != nil {
		return nil, errors.Wrap(err, "sign in")
	}
	return s, nil
}

// SignUp checks the form and registers the account. The username travels
// as user metadata; the service creates the profile from it. The result has
// no session when the service wants the email confirmed first.
func SignUp(ctx context.Context, auth Authenticator, form SignUpForm) (*backend.SignUpResult, error) {
	form.normalize()
	if err := Validate(form); err != nil {
		return nil, err
	}
	res, err := auth.SignUp(ctx,
		backend.Credentials{Email: form.Email, Password: form.Password},
		map[string]interface{}{"username": form.Username})
	if err != nil {
		return nil, errors.Wrap(err, "sign up")
	}
	return res, nil
}
