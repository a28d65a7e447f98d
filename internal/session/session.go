// Package session holds the per-user pipeline state between requests.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle        State = "idle"
	StateTranscribed State = "transcribed"
	StateTranslated  State = "translated"
	StateSpoken      State = "spoken"
)

// Session is the working state of one logged-in user. Translation is only
// ever set while Transcript is set.
type Session struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Transcript     *string   `json:"transcript,omitempty"`
	Translation    *string   `json:"translation,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func New(username string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Username:  username,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored value.
func (s *Session) Clone() *Session {
	c := *s
	if s.Transcript != nil {
		t := *s.Transcript
		c.Transcript = &t
	}
	if s.Translation != nil {
		t := *s.Translation
		c.Translation = &t
	}
	return &c
}

// Store persists sessions for their TTL. Lock serializes pipeline stages on
// one session; it fails with apperr.ErrSessionBusy when already held.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (unlock func(), err error)
	Ping(ctx context.Context) error
}
