package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"golang.org/x/oauth2"
)

// ErrNotAuthenticated means no usable token is stored
var ErrNotAuthenticated = errors.New("not authenticated: run 'strava-goals --force-reauth' to authorize")

// Storage persists credentials and tokens in the auth_config row
type Storage struct {
	queries *db.Queries
}

// NewStorage creates a new Storage instance
func NewStorage(queries *db.Queries) *Storage {
	return &Storage{queries: queries}
}

// SaveCredentials stores the client credentials, keeping any stored token
func (s *Storage) SaveCredentials(ctx context.Context, creds Credentials) error {
	params := db.SaveAuthConfigParams{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}
	existing, err := s.queries.GetAuthConfig(ctx)
	switch {
	case err == nil:
		params.AccessToken = existing.AccessToken
		params.RefreshToken = existing.RefreshToken
		params.ExpiresAt = existing.ExpiresAt
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking existing config: %w", err)
	}
	return s.queries.SaveAuthConfig(ctx, params)
}

// LoadCredentials returns the stored client credentials
func (s *Storage) LoadCredentials(ctx context.Context) (Credentials, error) {
	config, err := s.queries.GetAuthConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credentials{}, ErrNotAuthenticated
		}
		return Credentials{}, fmt.Errorf("loading auth config: %w", err)
	}
	return Credentials{ClientID: config.ClientID, ClientSecret: config.ClientSecret}, nil
}

// SaveToken replaces the stored token; credentials must already be saved
func (s *Storage) SaveToken(ctx context.Context, token Token) error {
	if _, err := s.queries.GetAuthConfig(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("checking existing config: %w", err)
	}
	return s.queries.UpdateTokens(ctx, db.UpdateTokensParams{
		AccessToken:  sql.NullString{String: token.AccessToken, Valid: true},
		RefreshToken: sql.NullString{String: token.RefreshToken, Valid: true},
		ExpiresAt:    sql.NullInt64{Int64: token.Expiry.Unix(), Valid: true},
	})
}

// LoadToken returns the stored token
func (s *Storage) LoadToken(ctx context.Context) (Token, error) {
	config, err := s.queries.GetAuthConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrNotAuthenticated
		}
		return Token{}, fmt.Errorf("loading auth config: %w", err)
	}
	if !config.AccessToken.Valid || config.AccessToken.String == "" {
		return Token{}, ErrNotAuthenticated
	}
	return Token{
		AccessToken:  config.AccessToken.String,
		RefreshToken: config.RefreshToken.String,
		Expiry:       time.Unix(config.ExpiresAt.Int64, 0),
	}, nil
}

// Delete removes credentials and tokens
func (s *Storage) Delete(ctx context.Context) error {
	return s.queries.DeleteAuthConfig(ctx)
}

// TokenSource returns an oauth2.TokenSource that refreshes through Strava
// and writes every rotated token back to storage
func (s *Storage) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	creds, err := s.LoadCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return s.tokenSource(ctx, creds)
}

func (s *Storage) tokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	token, err := s.LoadToken(ctx)
	if err != nil {
		return nil, err
	}
	// Pre-expire by the leeway so x/oauth2 refreshes at the same point Expired does
	seed := token.oauth2()
	seed.Expiry = seed.Expiry.Add(-expiryLeeway)

	return oauth2.ReuseTokenSource(seed, &persistingSource{
		ctx:     ctx,
		storage: s,
		creds:   creds,
		last:    token,
	}), nil
}

// persistingSource refreshes via the refresh token and saves the result
type persistingSource struct {
	ctx     context.Context
	storage *Storage
	creds   Credentials

	mu   sync.Mutex
	last Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := Refresh(p.ctx, p.creds, p.last.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := p.storage.SaveToken(p.ctx, token); err != nil {
		return nil, fmt.Errorf("saving refreshed token: %w", err)
	}
	logging.Logger.Info().Time("expires", token.Expiry).Msg("refreshed access token")

	p.last = token
	seed := token.oauth2()
	seed.Expiry = seed.Expiry.Add(-expiryLeeway)
	return seed, nil
}

// AccessToken returns a valid access token, refreshing and persisting if needed
func (s *Storage) AccessToken(ctx context.Context) (string, error) {
	ts, err := s.TokenSource(ctx)
	if err != nil {
		return "", err
	}
	token, err := ts.Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
