package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joshdurbin/strava-goals/internal/auth"
	"github.com/joshdurbin/strava-goals/internal/db"
	"github.com/joshdurbin/strava-goals/internal/logging"
	"github.com/joshdurbin/strava-goals/internal/server"
	"github.com/joshdurbin/strava-goals/internal/stats"
	"github.com/joshdurbin/strava-goals/internal/strava"
	syncsvc "github.com/joshdurbin/strava-goals/internal/sync"
	"github.com/joshdurbin/strava-goals/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// RuntimeConfig holds all runtime configuration from CLI flags
type RuntimeConfig struct {
	DBPath               string
	MCPPort              int
	SyncInterval         time.Duration
	TokenRefreshInterval time.Duration
	NoSync               bool
	ForceReauth          bool

	Goal      stats.GoalTarget
	GoalTypes []string
	Converter syncsvc.Converter
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	log := logging.Logger

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// openDatabase opens, lock-checks and migrates the cache
func openDatabase(ctx context.Context, path string) (*db.Queries, io.Closer, error) {
	log := logging.Logger

	log.Info().Str("path", path).Msg("opening database")
	sqlDB, err := db.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	// Check for database lock (another instance running)
	if err := db.CheckLock(sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	if err := db.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db.New(sqlDB), sqlDB, nil
}

// Run is the main entry point for the unified run mode
func Run(cfg *RuntimeConfig) error {
	log := logging.Logger

	log.Info().
		Str("db_path", cfg.DBPath).
		Int("mcp_port", cfg.MCPPort).
		Bool("no_sync", cfg.NoSync).
		Dur("sync_interval", cfg.SyncInterval).
		Dur("token_refresh_interval", cfg.TokenRefreshInterval).
		Float64("goal_miles", cfg.Goal.DistanceMiles).
		Float64("goal_hours", cfg.Goal.MovingTimeHours).
		Strs("goal_types", cfg.GoalTypes).
		Msg("starting strava-goals")

	ctx, cancel := signalContext()
	defer cancel()

	queries, closer, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	// Log database statistics
	workers.LogDatabaseStats(ctx, queries)

	srv := server.New(queries, server.Config{
		Goal:      cfg.Goal,
		GoalTypes: cfg.GoalTypes,
		Converter: cfg.Converter,
	})
	if err := srv.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial totals build failed")
	}

	// Start background workers with errgroup for graceful shutdown
	g, gCtx := errgroup.WithContext(ctx)

	if !cfg.NoSync {
		storage := auth.NewStorage(queries)

		// Check and handle authentication
		if err := ensureAuthenticated(ctx, storage, cfg.ForceReauth); err != nil {
			return fmt.Errorf("authentication: %w", err)
		}

		log.Info().Msg("starting background workers")

		// Token refresh worker
		tokenRefresher := workers.NewTokenRefresher(storage, cfg.TokenRefreshInterval)
		g.Go(func() error {
			tokenRefresher.Run(gCtx)
			return nil
		})

		// Activity sync worker; new activities rebuild the served totals
		activitySyncer := workers.NewActivitySyncer(
			queries,
			storage,
			cfg.SyncInterval,
			strava.DefaultRetryConfig(),
		).OnSynced(func(ctx context.Context, result syncsvc.Result) {
			if err := srv.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("refreshing totals after sync failed")
			}
			workers.LogDatabaseStats(ctx, queries)
		})
		g.Go(func() error {
			activitySyncer.Run(gCtx)
			return nil
		})
	} else {
		log.Info().Msg("running in offline mode (--no-sync), skipping Strava API sync")
	}

	var serverErr error
	if cfg.MCPPort > 0 {
		serverErr = runHTTPServer(ctx, srv.MCPServer(), cfg.MCPPort)
	} else {
		log.Info().Msg("MCP server running via stdio")
		serverErr = srv.Run(ctx)
	}

	// The server can return on its own (stdio EOF), so stop the workers too
	cancel()

	log.Info().Msg("waiting for workers to shut down")
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("worker error during shutdown")
	} else {
		log.Info().Msg("all workers shut down gracefully")
	}

	if errors.Is(serverErr, context.Canceled) {
		return nil
	}
	return serverErr
}

// ensureAuthenticated checks if we have a usable token, and if not, runs the OAuth flow
func ensureAuthenticated(ctx context.Context, storage *auth.Storage, force bool) error {
	log := logging.Logger

	// If force reauth is requested, clear existing tokens and credentials, then re-prompt
	if force {
		log.Info().Msg("force re-authentication requested, clearing existing credentials and tokens")
		if err := storage.Delete(ctx); err != nil {
			log.Debug().Err(err).Msg("failed to delete existing auth config (may not exist)")
		}
	}

	creds, err := resolveCredentials(ctx, storage, os.Stdin)
	if err != nil {
		return fmt.Errorf("getting credentials: %w", err)
	}

	if !force {
		_, err := storage.AccessToken(ctx)
		if err == nil {
			log.Info().Msg("using existing authentication")
			return nil
		}

		if errors.Is(err, auth.ErrNotAuthenticated) {
			log.Info().Msg("no valid authentication found, starting OAuth flow")
		} else {
			log.Warn().Err(err).Msg("token refresh failed, re-authentication required")
			fmt.Println("\n=== Token Refresh Failed ===")
			fmt.Println("Your Strava authentication has expired or been revoked.")
			fmt.Println("Re-authentication is required.")
		}
	}

	return runOAuthFlow(ctx, storage, creds)
}

// resolveCredentials looks in the store, then the environment, then asks
func resolveCredentials(ctx context.Context, storage *auth.Storage, in io.Reader) (auth.Credentials, error) {
	if creds, err := storage.LoadCredentials(ctx); err == nil {
		return creds, nil
	} else if !errors.Is(err, auth.ErrNotAuthenticated) {
		return auth.Credentials{}, err
	}

	if creds, ok := credentialsFromEnv(); ok {
		logging.Logger.Info().Msg("using client credentials from environment")
		return creds, nil
	}
	return promptForCredentials(in)
}

func credentialsFromEnv() (auth.Credentials, bool) {
	id := strings.TrimSpace(os.Getenv("STRAVA_CLIENT_ID"))
	secret := strings.TrimSpace(os.Getenv("STRAVA_CLIENT_SECRET"))
	if id == "" || secret == "" {
		return auth.Credentials{}, false
	}
	return auth.Credentials{ClientID: id, ClientSecret: secret}, true
}

// promptForCredentials prompts the user to enter their Strava API credentials
func promptForCredentials(in io.Reader) (auth.Credentials, error) {
	reader := bufio.NewReader(in)

	fmt.Println("\n=== Strava API Credentials Required ===")
	fmt.Println("Get your API credentials from: https://www.strava.com/settings/api")
	fmt.Println()

	fmt.Print("Enter your Client ID: ")
	clientID, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && clientID != "") {
		return auth.Credentials{}, fmt.Errorf("reading client ID: %w", err)
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return auth.Credentials{}, errors.New("client ID is required")
	}

	fmt.Print("Enter your Client Secret: ")
	clientSecret, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && clientSecret != "") {
		return auth.Credentials{}, fmt.Errorf("reading client secret: %w", err)
	}
	clientSecret = strings.TrimSpace(clientSecret)
	if clientSecret == "" {
		return auth.Credentials{}, errors.New("client secret is required")
	}

	return auth.Credentials{ClientID: clientID, ClientSecret: clientSecret}, nil
}

// runOAuthFlow performs the OAuth authentication flow with Strava
func runOAuthFlow(ctx context.Context, storage *auth.Storage, creds auth.Credentials) error {
	fmt.Println("\n=== Strava Authentication Required ===")
	fmt.Println("A browser window will open for you to authorize this application.")

	token, err := auth.Authorize(ctx, creds)
	if err != nil {
		return fmt.Errorf("OAuth flow failed: %w", err)
	}

	if err := storage.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	if err := storage.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}

	fmt.Printf("\nAuthentication successful! Token expires: %s\n\n", token.Expiry.Format(time.RFC1123))
	return nil
}

// runHTTPServer runs the MCP server over HTTP/SSE
func runHTTPServer(ctx context.Context, mcpServer *mcp.Server, port int) error {
	log := logging.Logger

	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Str("endpoint", fmt.Sprintf("http://localhost%s", addr)).
			Msg("MCP server running via HTTP/SSE")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
