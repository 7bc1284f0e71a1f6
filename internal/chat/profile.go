package chat

import (
	"context"
	"strings"
	"time"

	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
)

// Profile fetches one profile, nil when the user has none.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	q := backend.Select().Eq("id", id).MaybeSingle()
	if err := s.store.Select(ctx, TableProfiles, q, &p); err != nil {
		return nil, errors.Wrapf(err, "profile %s", id)
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

// MyProfile is the signed-in user's profile.
func (s *Service) MyProfile(ctx context.Context) (*Profile, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	return s.Profile(ctx, s.me)
}

type profileRow struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   *string   `json:"full_name"`
	AvatarURL  *string   `json:"avatar_url"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// SaveProfile validates form and upserts the user's profile, stamping
// last_seen_at. Blank optional fields are stored as null.
func (s *Service) SaveProfile(ctx context.Context, form ProfileForm) (*Profile, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	form.normalize()
	if err := Validate(form); err != nil {
		return nil, err
	}
	row := profileRow{ID: s.me, Username: form.Username, LastSeenAt: s.timestamp()}
	if form.FullName != "" {
		row.FullName = str(form.FullName)
	}
	if form.AvatarURL != "" {
		row.AvatarURL = str(form.AvatarURL)
	}
	if err := s.store.Upsert(ctx, TableProfiles, row); err != nil {
		return nil, errors.Wrap(err, "save profile")
	}
	return &Profile{
		ID:         row.ID,
		Username:   str(row.Username),
		FullName:   row.FullName,
		AvatarURL:  row.AvatarURL,
		LastSeenAt: &row.LastSeenAt,
	}, nil
}

// SearchProfiles finds other users whose username contains query, ignoring
// case. A blank query finds nothing.
func (s *Service) SearchProfiles(ctx context.Context, query string) ([]Profile, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	out := []Profile{}
	if query == "" {
		return out, nil
	}
	q := backend.Select("id", "username", "avatar_url").
		ILike("username", "%"+query+"%").
		Neq("id", s.me).
		Limit(s.searchLimit)
	if err := s.store.Select(ctx, TableProfiles, q, &out); err != nil {
		return nil, errors.Wrap(err, "search profiles")
	}
	return out, nil
}

// profilesByID loads the profiles of ids in one request.
func (s *Service) profilesByID(ctx context.Context, ids []string) (map[string]*Profile, error) {
	out := map[string]*Profile{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []Profile
	q := backend.Select("id", "username", "avatar_url", "full_name", "last_seen_at").In("id", ids)
	if err := s.store.Select(ctx, TableProfiles, q, &rows); err != nil {
		return nil, errors.Wrap(err, "load profiles")
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
