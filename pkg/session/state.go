package session

import (
	"github.com/google/uuid"
)

// Flash is a one-shot message shown to the user on the next page load.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// State is the server-side session record. It is stored as JSON in the kv
// store; only the opaque ID travels in the cookie.
type State struct {
	ID string `json:"-"`

	Initiated   bool    `json:"initiated"`
	UserID      string  `json:"user_id,omitempty"`
	UserName    string  `json:"user_name,omitempty"`
	UserEmail   string  `json:"user_email,omitempty"`
	UserPicture string  `json:"user_picture,omitempty"`
	CSRFToken   string  `json:"csrf_token,omitempty"`
	Flash       []Flash `json:"flash,omitempty"`

	// changed marks the record for persistence before the response is sent.
	changed bool
	// cookie marks that the cookie must be (re)issued on this response.
	cookie    bool
	destroyed bool
	// fresh marks a state whose id has not been persisted or sent yet.
	fresh bool
}

// User is the identity stored in a session after login.
type User struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Picture string
}

// CurrentUserID returns the logged-in user's id.
func (s *State) CurrentUserID() (uuid.UUID, bool) {
	if s == nil || s.UserID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SetUser records a logged-in identity.
func (s *State) SetUser(u User) {
	s.UserID = u.ID.String()
	s.UserName = u.Name
	s.UserEmail = u.Email
	s.UserPicture = u.Picture
	s.changed = true
}

// SetCSRFToken stores the session's anti-forgery token.
func (s *State) SetCSRFToken(token string) {
	s.CSRFToken = token
	s.changed = true
}

func (s *State) AddFlash(category, message string) {
	s.Flash = append(s.Flash, Flash{Category: category, Message: message})
	s.changed = true
}

// DrainFlash returns pending flash messages and clears them.
func (s *State) DrainFlash() []Flash {
	if len(s.Flash) == 0 {
		return nil
	}
	out := s.Flash
	s.Flash = nil
	s.changed = true
	return out
}

// Changed reports whether the record has unsaved modifications.
func (s *State) Changed() bool {
	return s.changed
}
