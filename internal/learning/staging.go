package learning

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpattn/accessmap/internal/domain"
)

// DefaultMaxSessions bounds the number of in-flight reviews.
const DefaultMaxSessions = 256

// Source says where a staged proposal came from.
type Source string

const (
	SourceInferred Source = "inferred"
	SourceLearned  Source = "learned"
)

// Session is one upload awaiting human review.
type Session struct {
	ID          uuid.UUID             `json:"session_id"`
	Filename    string                `json:"filename"`
	Fingerprint string                `json:"fingerprint"`
	Table       *domain.Table         `json:"-"`
	Mapping     domain.ColumnMapping  `json:"mapping"`
	Issues      domain.Issues         `json:"issues"`
	Devices     domain.DeviceMappings `json:"devices"`
	Source      Source                `json:"source"`
	Match       domain.MatchType      `json:"match_type"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func (s Session) clone() Session {
	s.Devices = s.Devices.Clone()
	if s.Table != nil {
		s.Table = s.Table.Clone()
	}
	s.Issues = append(domain.Issues(nil), s.Issues...)
	return s
}

// Staging holds review proposals in memory. The least recently used session
// is evicted once the bound is reached.
type Staging struct {
	mu       sync.Mutex
	sessions *lru.Cache[uuid.UUID, Session]
	now      func() time.Time
}

// NewStaging creates a staging area holding at most size sessions.
func NewStaging(size int) (*Staging, error) {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	cache, err := lru.New[uuid.UUID, Session](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging cache: %w", err)
	}
	return &Staging{sessions: cache, now: time.Now}, nil
}

// Stage stores a copy of session and returns it with its id and timestamps set.
func (s *Staging) Stage(session Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Source == "" {
		session.Source = SourceInferred
	}
	if session.Match == "" {
		session.Match = domain.MatchNone
	}
	now := s.now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	stored := session.clone()
	s.sessions.Add(stored.ID, stored)
	return stored.clone()
}

// Get returns a copy of the session or domain.ErrSessionNotFound.
func (s *Staging) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return Session{}, domain.ErrSessionNotFound
	}
	return session.clone(), nil
}

// Replace swaps the proposed devices of a session.
func (s *Staging) Replace(id uuid.UUID, devices domain.DeviceMappings, source Source, match domain.MatchType) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Get(id)
	if !ok {
		return Session{}, domain.ErrSessionNotFound
	}
	session.Devices = devices.Clone()
	session.Source = source
	session.Match = match
	session.UpdatedAt = s.now().UTC()
	s.sessions.Add(id, session)
	return session.clone(), nil
}

// Clear removes a session. Clearing an unknown id returns domain.ErrSessionNotFound.
func (s *Staging) Clear(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessions.Remove(id) {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Len reports how many sessions are staged.
func (s *Staging) Len() int {
	return s.sessions.Len()
}
