package sessions

import (
	"context"
	"time"
)

// Service wraps repository operations with expiry handling
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service { return &Service{repo: r, now: time.Now} }

// Store persists the session for its terminal, replacing any previous one.
func (s *Service) Store(ctx context.Context, sess *Session) error {
	return s.repo.Save(ctx, sess)
}

// Current returns the terminal's session, or nil when absent or expired.
func (s *Service) Current(ctx context.Context, terminalKey string) (*Session, error) {
	sess, err := s.repo.Get(ctx, terminalKey)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now().UTC()) {
		// cleanup expired session
		_ = s.repo.Delete(ctx, terminalKey)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) Clear(ctx context.Context, terminalKey string) error {
	return s.repo.Delete(ctx, terminalKey)
}
