package backend

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// User is the authenticated account as reported by the auth endpoint.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    *time.Time             `json:"created_at,omitempty"`
}

// Session is a signed-in user's token pair.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return true
	}
	exp := s.ExpiresAt
	if exp == 0 {
		claims, err := ParseAccessToken(s.AccessToken)
		if err != nil {
			return true
		}
		exp = claims.ExpiresAt.Unix()
	}
	return now.Unix() >= exp
}

// Credentials for password sign-in and sign-up.
type Credentials struct {
	Email    string
	Password string
}

// SignUpResult carries the new user. Session is nil when the service requires
// email confirmation before the first sign-in.
type SignUpResult struct {
	User    User
	Session *Session
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, cr Credentials) (*Session, error) {
	var s Session
	resp, err := c.do(ctx, request{
		method: fasthttp.MethodPost,
		path:   authPath + "token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": cr.Email, "password": cr.Password},
		bearer: c.key,
	})
	if err != nil {
		return nil, err
	}
	if err := decodeInto(resp.body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignUp registers an account. metadata is stored as user metadata and is
// read by server-side triggers (the username lives there).
func (c *Client) SignUp(ctx context.Context, cr Credentials, metadata map[string]interface{}) (*SignUpResult, error) {
	resp, err := c.do(ctx, request{
		method: fasthttp.MethodPost,
		path:   authPath + "signup",
		body: map[string]interface{}{
			"email":    cr.Email,
			"password": cr.Password,
			"data":     metadata,
		},
		bearer: c.key,
	})
	if err != nil {
		return nil, err
	}
	// With confirmation on the body is the bare user; with auto-confirm it is
	// a session wrapping the user.
	var raw struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := decodeInto(resp.body, &raw); err != nil {
		return nil, err
	}
	if raw.AccessToken != "" {
		s := raw.Session
		return &SignUpResult{User: s.User, Session: &s}, nil
	}
	return &SignUpResult{User: User{ID: raw.ID, Email: raw.Email}}, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	var s Session
	resp, err := c.do(ctx, request{
		method: fasthttp.MethodPost,
		path:   authPath + "token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		bearer: c.key,
	})
	if err != nil {
		return nil, err
	}
	if err := decodeInto(resp.body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignOut revokes the bound session.
func (c *Client) SignOut(ctx context.Context) error {
	if c.token == "" {
		return ErrNoSession
	}
	_, err := c.do(ctx, request{method: fasthttp.MethodPost, path: authPath + "logout"})
	return err
}

// GetUser fetches the user owning the bound session.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	if c.token == "" {
		return nil, ErrNoSession
	}
	var u User
	resp, err := c.do(ctx, request{method: fasthttp.MethodGet, path: authPath + "user"})
	if err != nil {
		return nil, err
	}
	if err := decodeInto(resp.body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Claims are the parts of an access token this client relies on.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// ParseAccessToken decodes an access token without verifying its signature;
// the service verifies it on every call. Tokens without a subject or expiry
// are rejected.
func ParseAccessToken(token string) (Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Claims{}, ErrNoSession
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, errors.Wrap(err, "parse access token")
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("parse access token: unexpected claims")
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, errors.New("access token has no subject")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, errors.New("access token has no expiry")
	}
	email, _ := mc["email"].(string)
	return Claims{UserID: sub, Email: email, ExpiresAt: exp.Time}, nil
}
