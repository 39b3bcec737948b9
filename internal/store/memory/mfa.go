package memory

import (
	"context"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/mfa"
)

func (s *Store) GetMFASecret(_ context.Context, userID string) (mfa.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[userID]
	if !ok {
		return mfa.Secret{}, apperr.NotFound("mfa secret", userID)
	}
	return sec, nil
}

func (s *Store) SaveMFASecret(_ context.Context, sec mfa.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[sec.UserID]; !ok {
		return apperr.NotFound("user", sec.UserID)
	}
	s.secrets[sec.UserID] = sec
	return nil
}

func (s *Store) EnableMFASecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[userID]
	if !ok {
		return apperr.NotFound("mfa secret", userID)
	}
	sec.Enabled = true
	s.secrets[userID] = sec
	return nil
}

func (s *Store) DeleteMFASecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.secrets[userID]; !ok {
		return apperr.NotFound("mfa secret", userID)
	}
	delete(s.secrets, userID)
	return nil
}
