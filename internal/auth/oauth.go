package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL      = "https://www.strava.com/oauth/authorize"
	defaultTokenURL     = "https://www.strava.com/oauth/token"
	defaultCallbackAddr = "localhost:8089"
	scopes              = "activity:read_all"

	// Tokens this close to expiry are refreshed early
	expiryLeeway = 5 * time.Minute

	authorizeTimeout = 5 * time.Minute
)

// Credentials identify the Strava API application
type Credentials struct {
	ClientID     string
	ClientSecret string

	// Overridable for tests
	AuthURL      string
	TokenURL     string
	CallbackAddr string
}

// oauth2Config builds the x/oauth2 config, filling Strava defaults
func (c Credentials) oauth2Config() *oauth2.Config {
	authURL, tokenURL := c.AuthURL, c.TokenURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "http://" + c.callbackAddr() + "/callback",
		Scopes:      []string{scopes},
	}
}

func (c Credentials) callbackAddr() string {
	if c.CallbackAddr == "" {
		return defaultCallbackAddr
	}
	return c.CallbackAddr
}

// Token is the persisted subset of an OAuth token
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func tokenFromOAuth2(t *oauth2.Token) Token {
	return Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func (t Token) oauth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
		TokenType:    "Bearer",
	}
}

// Expired reports whether the token expires within the refresh leeway of now
func (t Token) Expired(now time.Time) bool {
	return !now.Add(expiryLeeway).Before(t.Expiry)
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Authorize runs the browser authorization code flow and returns the exchanged token
func Authorize(ctx context.Context, creds Credentials) (Token, error) {
	log := logging.Logger
	config := creds.oauth2Config()

	state, err := newState()
	if err != nil {
		return Token{}, err
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errChan <- errors.New("authorization failed: state mismatch")
			return
		}
		code := q.Get("code")
		if code == "" {
			errMsg := q.Get("error")
			if errMsg == "" {
				errMsg = "no authorization code received"
			}
			http.Error(w, errMsg, http.StatusBadRequest)
			errChan <- fmt.Errorf("authorization failed: %s", errMsg)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>`)
		codeChan <- code
	})

	listener, err := net.Listen("tcp", creds.callbackAddr())
	if err != nil {
		return Token{}, fmt.Errorf("starting callback server: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))
	fmt.Println("Opening browser for Strava authorization...")
	fmt.Printf("If browser doesn't open, visit: %s\n\n", authURL)
	if err := browser.OpenURL(authURL); err != nil {
		log.Warn().Err(err).Msg("could not open browser automatically")
	}

	timer := time.NewTimer(authorizeTimeout)
	defer timer.Stop()

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return Token{}, err
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case <-timer.C:
		return Token{}, errors.New("authorization timeout")
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange failed: %w", err)
	}
	log.Info().Time("expires", token.Expiry).Msg("authorization complete")
	return tokenFromOAuth2(token), nil
}

// Refresh exchanges a refresh token for a new token
func Refresh(ctx context.Context, creds Credentials, refreshToken string) (Token, error) {
	expired := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	token, err := creds.oauth2Config().TokenSource(ctx, expired).Token()
	if err != nil {
		return Token{}, fmt.Errorf("token refresh failed: %w", err)
	}
	return tokenFromOAuth2(token), nil
}
