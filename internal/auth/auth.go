// Package auth tracks the backend bearer credential and gates the operations
// that need it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/localstore"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrNoToken            = errors.New("backend did not return an access token")
)

// Store persists the token between runs.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Gate holds the current bearer token. It is the backend client's TokenSource.
type Gate struct {
	store Store
	log   zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewGate loads any persisted token from store.
func NewGate(store Store, log zerolog.Logger) (*Gate, error) {
	g := &Gate{store: store, log: log}
	tok, ok, err := store.Get(localstore.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if ok {
		g.token = tok
		log.Info().Msg("restored saved login")
	}
	return g, nil
}

// Token returns the bearer token, or "" when logged out.
func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// IsAuthenticated reports whether a token is present. Presence is the only
// check; the backend decides validity.
func (g *Gate) IsAuthenticated() bool {
	return g.Token() != ""
}

// SetToken stores and persists a new token.
func (g *Gate) SetToken(token string) error {
	if err := g.store.Set(localstore.KeyToken, token); err != nil {
		return err
	}
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	return nil
}

// Clear forgets the token.
func (g *Gate) Clear() error {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
	return g.store.Delete(localstore.KeyToken)
}

// AccountAPI is the subset of the backend client used for accounts.
type AccountAPI interface {
	Register(ctx context.Context, req backend.RegisterRequest) (*backend.User, error)
	Login(ctx context.Context, username, password string) (*backend.TokenResponse, error)
	Me(ctx context.Context) (*backend.User, error)
}

// Service implements login, registration and logout on top of a Gate.
type Service struct {
	gate *Gate
	api  AccountAPI
	log  zerolog.Logger
}

func NewService(gate *Gate, api AccountAPI, log zerolog.Logger) *Service {
	return &Service{gate: gate, api: api, log: log}
}

// Gate returns the underlying token holder.
func (s *Service) Gate() *Gate { return s.gate }

// Login authenticates with email and password and persists the token.
func (s *Service) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	tok, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.log.Warn().Err(err).Msg("login failed")
		return fmt.Errorf("login: %w", err)
	}
	if tok.AccessToken == "" {
		return ErrNoToken
	}
	if err := s.gate.SetToken(tok.AccessToken); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.log.Info().Msg("logged in")
	return nil
}

// Register creates an account and logs into it.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrMissingCredentials
	}
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if _, err := s.api.Register(ctx, backend.RegisterRequest{Username: username, Email: email, Password: password}); err != nil {
		s.log.Warn().Err(err).Msg("registration failed")
		return fmt.Errorf("register: %w", err)
	}
	return s.Login(ctx, email, password)
}

// Logout drops the token. It never contacts the backend.
func (s *Service) Logout() error {
	s.log.Info().Msg("logged out")
	return s.gate.Clear()
}

// Profile returns the current user. A 401 means the token is stale, so it is
// cleared.
func (s *Service) Profile(ctx context.Context) (*backend.User, error) {
	u, err := s.api.Me(ctx)
	if backend.IsUnauthorized(err) {
		if clearErr := s.gate.Clear(); clearErr != nil {
			s.log.Warn().Err(clearErr).Msg("failed to clear stale token")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return u, nil
}

// IsAuthenticated reports whether a token is held.
func (s *Service) IsAuthenticated() bool { return s.gate.IsAuthenticated() }
