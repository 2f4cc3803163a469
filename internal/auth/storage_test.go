package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshdurbin/strava-goals/internal/db"
)

// setupStorage opens a migrated SQLite database in a temp directory
func setupStorage(t *testing.T) *Storage {
	t.Helper()

	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(context.Background(), sqlDB); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStorage(db.New(sqlDB))
}

func TestSaveAndLoadCredentials(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "test_client_id", ClientSecret: "test_client_secret"}); err != nil {
		t.Fatalf("failed to save credentials: %v", err)
	}

	creds, err := storage.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}
	if creds.ClientID != "test_client_id" || creds.ClientSecret != "test_client_secret" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}

func TestLoadBeforeSave(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if _, err := storage.LoadCredentials(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("LoadCredentials: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := storage.LoadToken(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("LoadToken: expected ErrNotAuthenticated, got %v", err)
	}
	if err := storage.SaveToken(ctx, Token{AccessToken: "a"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("SaveToken: expected ErrNotAuthenticated, got %v", err)
	}
}

func TestLoadTokenWithoutAccessToken(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "c", ClientSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.LoadToken(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "c", ClientSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := storage.SaveToken(ctx, Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	token, err := storage.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if token.AccessToken != "access" || token.RefreshToken != "refresh" || !token.Expiry.Equal(expiry) {
		t.Errorf("unexpected token %+v", token)
	}

	// Re-saving credentials keeps the token
	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "c2", ClientSecret: "s2"}); err != nil {
		t.Fatal(err)
	}
	if token, err := storage.LoadToken(ctx); err != nil || token.AccessToken != "access" {
		t.Errorf("expected token preserved after credential update, got %+v, %v", token, err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "c", ClientSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := storage.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := storage.LoadCredentials(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after delete, got %v", err)
	}
}

func TestAccessTokenStillValid(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()

	if err := storage.SaveCredentials(ctx, Credentials{ClientID: "c", ClientSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := storage.SaveToken(ctx, Token{AccessToken: "valid", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	got, err := storage.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "valid" {
		t.Errorf("expected stored token, got %q", got)
	}
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	t.Parallel()

	storage := setupStorage(t)
	ctx := context.Background()
	server := tokenServer(t, "rotated_access", "rotated_refresh")
	creds := Credentials{ClientID: "client", ClientSecret: "secret", TokenURL: server.URL}

	if err := storage.SaveCredentials(ctx, creds); err != nil {
		t.Fatal(err)
	}
	// Inside the leeway, so a refresh is due
	if err := storage.SaveToken(ctx, Token{AccessToken: "stale", RefreshToken: "old_refresh", Expiry: time.Now().Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}

	ts, err := storage.tokenSource(ctx, creds)
	if err != nil {
		t.Fatalf("tokenSource: %v", err)
	}
	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.AccessToken != "rotated_access" {
		t.Errorf("expected rotated token, got %q", token.AccessToken)
	}

	stored, err := storage.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if stored.AccessToken != "rotated_access" || stored.RefreshToken != "rotated_refresh" {
		t.Errorf("expected rotated token persisted, got %+v", stored)
	}
}
