package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/pelusa-v/wachat/internal/backend"
	"github.com/pkg/errors"
)

// Request is a pending contact request addressed to the user.
type Request struct {
	Contact
	Requester *Profile `json:"requester"`
}

// Friend is an accepted contact seen from the user's side.
type Friend struct {
	ContactID string   `json:"contact_id"`
	UserID    string   `json:"user_id"`
	Profile   *Profile `json:"profile"`
}

func checkUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: "user_id", Message: "user_id must be a valid id"}
	}
	return nil
}

// StartConversation finds or creates the conversation with other.
func (s *Service) StartConversation(ctx context.Context, other string) (string, error) {
	if err := s.signedIn(); err != nil {
		return "", err
	}
	if err := checkUserID(other); err != nil {
		return "", err
	}
	if other == s.me {
		return "", ErrSelfChat
	}
	var conv string
	if err := s.store.RPC(ctx, RPCFindOrCreateConversation, map[string]string{"other_user": other}, &conv); err != nil {
		return "", errors.Wrap(err, "start conversation")
	}
	return conv, nil
}

type newContact struct {
	RequesterID string        `json:"requester_id"`
	AddresseeID string        `json:"addressee_id"`
	Status      ContactStatus `json:"status"`
}

// SendContactRequest asks to to become a contact.
func (s *Service) SendContactRequest(ctx context.Context, to string) (*Contact, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	if err := checkUserID(to); err != nil {
		return nil, err
	}
	if to == s.me {
		return nil, &ValidationError{Field: "user_id", Message: "cannot add yourself"}
	}
	var c Contact
	row := newContact{RequesterID: s.me, AddresseeID: to, Status: ContactPending}
	if err := s.store.Insert(ctx, TableContacts, row, &c); err != nil {
		return nil, errors.Wrap(err, "send contact request")
	}
	return &c, nil
}

// IncomingRequests lists pending requests to the user, newest first.
func (s *Service) IncomingRequests(ctx context.Context) ([]Request, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	var rows []Contact
	q := backend.Select().
		Eq("addressee_id", s.me).
		Eq("status", string(ContactPending)).
		OrderBy("created_at", false)
	if err := s.store.Select(ctx, TableContacts, q, &rows); err != nil {
		return nil, errors.Wrap(err, "incoming requests")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RequesterID)
	}
	profiles, err := s.profilesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(rows))
	for _, r := range rows {
		out = append(out, Request{Contact: r, Requester: profiles[r.RequesterID]})
	}
	return out, nil
}

// AcceptContact accepts a request addressed to the user.
func (s *Service) AcceptContact(ctx context.Context, requestID string) error {
	if err := s.signedIn(); err != nil {
		return err
	}
	if err := s.store.RPC(ctx, RPCAcceptContact, map[string]string{"req_id": requestID}, nil); err != nil {
		return errors.Wrap(err, "accept contact")
	}
	return nil
}

// Friends lists accepted contacts on either side of the request.
func (s *Service) Friends(ctx context.Context) ([]Friend, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	var rows []Contact
	q := backend.Select().
		Or(backend.EqFilter("requester_id", s.me), backend.EqFilter("addressee_id", s.me)).
		Eq("status", string(ContactAccepted))
	if err := s.store.Select(ctx, TableContacts, q, &rows); err != nil {
		return nil, errors.Wrap(err, "friends")
	}
	out := make([]Friend, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		other := r.AddresseeID
		if other == s.me {
			other = r.RequesterID
		}
		ids = append(ids, other)
		out = append(out, Friend{ContactID: r.ID, UserID: other})
	}
	profiles, err := s.profilesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Profile = profiles[out[i].UserID]
	}
	return out, nil
}
