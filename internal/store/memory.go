package store

import (
	"context"
	"sync"
	"time"

	"github.com/giftdraw/auth-bridge/internal/model"
)

// MemoryStore is a process-local PairingStore for tests and single-node runs.
// Expired records are evicted lazily on access.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*model.PairingToken
	byUser map[int64]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*model.PairingToken),
		byUser: make(map[int64]string),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(ctx context.Context, token string, ttl time.Duration) (*model.PairingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &model.PairingToken{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.tokens[token] = rec

	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) Attach(ctx context.Context, token string, identity Identity) (AttachOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getLocked(token)
	if rec == nil {
		return AttachNotFound, nil
	}

	outcome := AttachOK
	if rec.TelegramID != nil {
		if *rec.TelegramID == identity.TelegramID {
			return AttachIdempotent, nil
		}
		outcome = AttachReplaced
		delete(s.byUser, *rec.TelegramID)
	}

	id := identity.TelegramID
	rec.TelegramID = &id
	rec.Username = identity.Username
	rec.FirstName = identity.FirstName
	s.byUser[id] = token

	return outcome, nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*model.PairingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getLocked(token)
	if rec == nil {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) Consume(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An expired record is already gone as far as callers are concerned,
	// matching the Redis adapter where the key has lapsed.
	rec := s.getLocked(token)
	if rec == nil {
		return false, nil
	}
	s.deleteLocked(token, rec)
	return true, nil
}

func (s *MemoryStore) FindUnattached(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var newest *model.PairingToken
	for _, rec := range s.tokens {
		if rec.Expired(now) || rec.Attached() {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return "", nil
	}
	return newest.Token, nil
}

func (s *MemoryStore) FindByTelegramID(ctx context.Context, telegramID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byUser[telegramID]
	if !ok {
		return "", nil
	}
	if s.getLocked(token) == nil {
		return "", nil
	}
	return token, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var pruned int64
	for token, rec := range s.tokens {
		if rec.Expired(now) {
			s.deleteLocked(token, rec)
			pruned++
		}
	}
	return pruned, nil
}

// getLocked returns the live record or nil, evicting it if expired.
// Caller holds the mutex.
func (s *MemoryStore) getLocked(token string) *model.PairingToken {
	rec, ok := s.tokens[token]
	if !ok {
		return nil
	}
	if rec.Expired(s.now()) {
		s.deleteLocked(token, rec)
		return nil
	}
	return rec
}

func (s *MemoryStore) deleteLocked(token string, rec *model.PairingToken) {
	delete(s.tokens, token)
	if rec.TelegramID != nil && s.byUser[*rec.TelegramID] == token {
		delete(s.byUser, *rec.TelegramID)
	}
}
