// Package memory provides an in-memory implementation of the storage
// interfaces, suitable for development, tests and single-instance
// deployments. All operations are safe for concurrent use.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bentlogic/oauth2-provider/security"
	"github.com/bentlogic/oauth2-provider/storage"
)

// DefaultCleanupInterval is how often the background cleanup sweeps expired
// and consumed authorization codes.
const DefaultCleanupInterval = 5 * time.Minute

// Store is an in-memory implementation of ClientStore, FlowStore and
// TokenStore.
type Store struct {
	mu        sync.RWMutex
	clients   map[string]*storage.Client
	codes     map[string]*storage.AuthorizationCode
	byAccess  map[string]*storage.Token
	byRefresh map[string]*storage.Token

	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval.
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store whose cleanup loop runs at
// the given interval. An interval of zero or less disables the loop.
func NewWithInterval(interval time.Duration) *Store {
	s := &Store{
		clients:   make(map[string]*storage.Client),
		codes:     make(map[string]*storage.AuthorizationCode),
		byAccess:  make(map[string]*storage.Token),
		byRefresh: make(map[string]*storage.Token),
		logger:    slog.Default(),
		stopCh:    make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop(interval)
	}
	return s
}

// SetLogger sets the logger used by the cleanup loop.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Stop terminates the background cleanup loop. Safe to call multiple times.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.CleanupExpiredCodes(time.Now())
			if removed > 0 {
				s.logger.Debug("Cleaned up authorization codes", "removed", removed)
			}
		case <-s.stopCh:
			return
		}
	}
}

// CleanupExpiredCodes removes authorization codes that are consumed, revoked
// or past their lifetime, and returns how many were removed. Token records
// are never swept: the refresh half has no expiry of its own.
func (s *Store) CleanupExpiredCodes(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, code := range s.codes {
		if code.Used || code.IsRevoked(now) {
			delete(s.codes, value)
			removed++
		}
	}
	return removed
}

// SaveClient stores a registered client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	s.clients[client.ClientID] = &c
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	return &c, nil
}

// ValidateClientSecret verifies a client secret against the stored bcrypt
// hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		return storage.ErrNotFound
	}
	if err := security.CompareClientSecret(client.ClientSecretHash, clientSecret); err != nil {
		return storage.ErrInvalidClientSecret
	}
	return nil
}

// SaveAuthorizationCode persists a newly issued code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.codes[code.Code] = &c
	return nil
}

// GetAuthorizationCode retrieves a code by value.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}

	c := *stored
	return &c, nil
}

// ConsumeAuthorizationCode atomically marks a code used and returns it. The
// check and the mark happen under a single write lock, so two concurrent
// exchanges of the same code cannot both succeed.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if stored.Used {
		return nil, storage.ErrCodeConsumed
	}
	stored.Used = true

	c := *stored
	return &c, nil
}

// DeleteAuthorizationCode removes a code.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return storage.ErrNotFound
	}
	delete(s.codes, code)
	return nil
}

// SaveToken persists a newly issued token pair, indexed by both halves.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.byAccess[token.AccessToken] = &t
	s.byRefresh[token.RefreshToken] = &t
	return nil
}

// GetTokenByAccess retrieves a token record by access-token value.
func (s *Store) GetTokenByAccess(ctx context.Context, accessToken string) (*storage.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.byAccess[accessToken]
	if !ok {
		return nil, storage.ErrNotFound
	}

	t := *token
	return &t, nil
}

// GetTokenByRefresh retrieves a token record by refresh-token value.
func (s *Store) GetTokenByRefresh(ctx context.Context, refreshToken string) (*storage.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, storage.ErrNotFound
	}

	t := *token
	return &t, nil
}

// UpdateToken persists changes to an existing record.
func (s *Store) UpdateToken(ctx context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAccess[token.AccessToken]; !ok {
		return storage.ErrNotFound
	}

	t := *token
	s.byAccess[token.AccessToken] = &t
	s.byRefresh[token.RefreshToken] = &t
	return nil
}

// RotateToken atomically replaces the record identified by refreshToken with
// next. The old record disappears from both indexes before the new one is
// inserted, all under one write lock.
func (s *Store) RotateToken(ctx context.Context, refreshToken string, next *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byRefresh[refreshToken]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byRefresh, old.RefreshToken)
	delete(s.byAccess, old.AccessToken)

	t := *next
	s.byAccess[next.AccessToken] = &t
	s.byRefresh[next.RefreshToken] = &t
	return nil
}
