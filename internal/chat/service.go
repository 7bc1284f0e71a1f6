// Package chat holds the messaging domain: rows of the hosted service, the
// operations the screens perform on them, and the pure view logic (status
// marks, day grouping, search).
package chat

import (
	"context"
	"time"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
)

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrEmptyBody       = errors.New("message body is empty")
	ErrNotMember       = errors.New("conversation not found")
	ErrNoMessage       = errors.New("message not found")
	ErrInvalidUsername = errors.New("username must be 3-20 characters of a-z, 0-9 or _")
	ErrSelfChat        = errors.New("cannot start a conversation with yourself")
)

// Store is the table, procedure and change feed surface of the hosted
// service, bound to one signed-in user.
type Store interface {
	Select(ctx context.Context, table string, q backend.Query, out interface{}) error
	Count(ctx context.Context, table string, q backend.Query) (int, error)
	Insert(ctx context.Context, table string, row interface{}, out interface{}) error
	Upsert(ctx context.Context, table string, row interface{}) error
	Update(ctx context.Context, table string, patch interface{}, q backend.Query) error
	Delete(ctx context.Context, table string, q backend.Query) error
	RPC(ctx context.Context, fn string, params interface{}, out interface{}) error
	Subscribe(ctx context.Context, ch backend.Channel) (*backend.Subscription, error)
}

const (
	DefaultHistoryLimit = 150
	DefaultSearchLimit  = 10
)

// Service runs the domain operations for one user.
type Service struct {
	store        Store
	me           string
	now          func() time.Time
	historyLimit int
	searchLimit  int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithSearchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.searchLimit = n
		}
	}
}

// NewService binds store to the user me. An empty me yields a service whose
// operations all fail with ErrNotSignedIn.
func NewService(store Store, me string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		me:           me,
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
		searchLimit:  DefaultSearchLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Me is the signed-in user id.
func (s *Service) Me() string { return s.me }

func (s *Service) signedIn() error {
	if s.me == "" {
		return ErrNotSignedIn
	}
	return nil
}

func (s *Service) timestamp() time.Time { return s.now().UTC() }
